package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"gemtrack/backend/internal/domain"
	"gemtrack/backend/internal/ledger"
	"gemtrack/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const txColumns = `
	id, sale_id, date, description, weight, purchase_price, cert_charges,
	gross_sale_price, exchange_rate, commission_rate, total_cost,
	converted_sale, profit, status, canceled, created_at, canceled_at,
	original_purchase_price, original_converted_sale
`

func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.Date == "" {
		return nil, store.ErrInvalidInput
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusActive
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if tx.SaleID == "" {
		seq, err := nextSequence(ctx, pgTx, "sale")
		if err != nil {
			return nil, err
		}
		tx.SaleID = ledger.FormatSaleID(seq)
	} else {
		// Keep the persisted counter ahead of manually supplied identifiers.
		if err := bumpSequence(ctx, pgTx, "sale", ledger.SaleIDSequence(tx.SaleID)); err != nil {
			return nil, err
		}
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO transactions (
			sale_id, date, description, weight, purchase_price, cert_charges,
			gross_sale_price, exchange_rate, commission_rate, total_cost,
			converted_sale, profit, status, canceled, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`, tx.SaleID, tx.Date, tx.Description, tx.Weight, tx.PurchasePrice, tx.CertCharges,
		tx.GrossSalePrice, tx.ExchangeRate, tx.CommissionRate, tx.TotalCost,
		tx.ConvertedSale, tx.Profit, tx.Status, tx.Canceled, tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSaleID
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		ORDER BY date ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 128)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const updateTransactionSQL = `
	UPDATE transactions
	SET sale_id = $2, date = $3, description = $4, weight = $5,
		purchase_price = $6, cert_charges = $7, gross_sale_price = $8,
		exchange_rate = $9, commission_rate = $10, total_cost = $11,
		converted_sale = $12, profit = $13, status = $14, canceled = $15,
		canceled_at = $16, original_purchase_price = $17,
		original_converted_sale = $18, updated_at = now()
	WHERE id = $1
`

func transactionUpdateArgs(tx domain.Transaction) []any {
	var originalPurchase, originalSale any
	if tx.OriginalValues != nil {
		originalPurchase = tx.OriginalValues.PurchasePrice
		originalSale = tx.OriginalValues.ConvertedSale
	}
	return []any{
		tx.ID, tx.SaleID, tx.Date, tx.Description, tx.Weight,
		tx.PurchasePrice, tx.CertCharges, tx.GrossSalePrice,
		tx.ExchangeRate, tx.CommissionRate, tx.TotalCost,
		tx.ConvertedSale, tx.Profit, tx.Status, tx.Canceled,
		nullTime(tx.CanceledAt), originalPurchase, originalSale,
	}
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, updateTransactionSQL, transactionUpdateArgs(tx)...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := tx
	return &updated, nil
}

// CancelTransaction writes the canceled transaction state and the
// compensating expense in one serializable SQL transaction, so the pair
// either lands together or not at all.
func (s *Store) CancelTransaction(ctx context.Context, tx domain.Transaction, compensating domain.Expense) (*domain.Transaction, *domain.Expense, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, updateTransactionSQL, transactionUpdateArgs(tx)...)
	if err != nil {
		return nil, nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		return nil, nil, store.ErrNotFound
	}

	saved, err := insertExpense(ctx, pgTx, compensating)
	if err != nil {
		return nil, nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}
	canceled := tx
	return &canceled, saved, nil
}

func (s *Store) PeekNextSaleID(ctx context.Context) (string, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT value FROM id_sequences WHERE name = 'sale'), 0)
	`).Scan(&value)
	if err != nil {
		return "", err
	}
	return ledger.FormatSaleID(value + 1), nil
}

func (s *Store) InsertExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	saved, err := insertExpense(ctx, pgTx, expense)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func insertExpense(ctx context.Context, pgTx *sql.Tx, expense domain.Expense) (*domain.Expense, error) {
	if expense.Date == "" || strings.TrimSpace(expense.Type) == "" {
		return nil, store.ErrInvalidInput
	}
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if expense.ExpenseID == "" {
		seq, err := nextSequence(ctx, pgTx, "expense")
		if err != nil {
			return nil, err
		}
		expense.ExpenseID = ledger.FormatExpenseID(seq)
	} else if err := bumpSequence(ctx, pgTx, "expense", ledger.ExpenseIDSequence(expense.ExpenseID)); err != nil {
		return nil, err
	}
	if expense.Split == 0 {
		expense.Split = domain.DefaultExpenseSplit
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	err := pgTx.QueryRowContext(ctx, `
		INSERT INTO expenses (expense_id, date, type, amount, split, related_sale_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, expense.ExpenseID, expense.Date, expense.Type, expense.Amount, expense.Split,
		nullIfEmpty(expense.RelatedSaleID), expense.CreatedAt).Scan(&expense.ID)
	if err != nil {
		return nil, err
	}
	saved := expense
	return &saved, nil
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expense_id, date, type, amount, split, COALESCE(related_sale_id, ''), created_at
		FROM expenses
		ORDER BY date ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.ExpenseID, &e.Date, &e.Type, &e.Amount, &e.Split, &e.RelatedSaleID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM expenses
		WHERE expense_id = $1
	`, expenseID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReplaceEmployees(ctx context.Context, employees []domain.Employee) ([]domain.Employee, error) {
	for i := range employees {
		employees[i].Name = strings.TrimSpace(employees[i].Name)
		if employees[i].Name == "" || !employees[i].Commission.IsPositive() {
			return nil, store.ErrInvalidInput
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM employees`); err != nil {
		return nil, err
	}
	for i := range employees {
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO employees (name, commission)
			VALUES ($1,$2)
			RETURNING id
		`, employees[i].Name, employees[i].Commission).Scan(&employees[i].ID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrInvalidInput
			}
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	result := make([]domain.Employee, len(employees))
	copy(result, employees)
	return result, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, commission
		FROM employees
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Employee, 0, 16)
	for rows.Next() {
		var emp domain.Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Commission); err != nil {
			return nil, err
		}
		result = append(result, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value
		FROM settings
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Setting, 0, 8)
	for rows.Next() {
		var setting domain.Setting
		if err := rows.Scan(&setting.Name, &setting.Value); err != nil {
			return nil, err
		}
		result = append(result, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) PutSetting(ctx context.Context, setting domain.Setting) error {
	if strings.TrimSpace(setting.Name) == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, setting.Name, setting.Value)
	return err
}

func nextSequence(ctx context.Context, pgTx *sql.Tx, name string) (int64, error) {
	var value int64
	err := pgTx.QueryRowContext(ctx, `
		INSERT INTO id_sequences (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET value = id_sequences.value + 1
		RETURNING value
	`, name).Scan(&value)
	return value, err
}

func bumpSequence(ctx context.Context, pgTx *sql.Tx, name string, floor int64) error {
	if floor < 1 {
		return nil
	}
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO id_sequences (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name)
		DO UPDATE SET value = GREATEST(id_sequences.value, EXCLUDED.value)
	`, name, floor)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var canceledAt sql.NullTime
	var originalPurchase, originalSale decimal.NullDecimal

	err := row.Scan(
		&tx.ID,
		&tx.SaleID,
		&tx.Date,
		&tx.Description,
		&tx.Weight,
		&tx.PurchasePrice,
		&tx.CertCharges,
		&tx.GrossSalePrice,
		&tx.ExchangeRate,
		&tx.CommissionRate,
		&tx.TotalCost,
		&tx.ConvertedSale,
		&tx.Profit,
		&tx.Status,
		&tx.Canceled,
		&tx.CreatedAt,
		&canceledAt,
		&originalPurchase,
		&originalSale,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tx, store.ErrNotFound
		}
		return tx, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	if canceledAt.Valid {
		at := canceledAt.Time.UTC()
		tx.CanceledAt = &at
	}
	if originalPurchase.Valid && originalSale.Valid {
		tx.OriginalValues = &domain.OriginalValues{
			PurchasePrice: originalPurchase.Decimal,
			ConvertedSale: originalSale.Decimal,
		}
	}
	return tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
