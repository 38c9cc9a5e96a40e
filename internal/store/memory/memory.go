package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gemtrack/backend/internal/domain"
	"gemtrack/backend/internal/ledger"
	"gemtrack/backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	transactions  map[int64]*domain.Transaction
	expenses      map[int64]*domain.Expense
	employees     []domain.Employee
	settings      map[string]domain.Setting
	nextTxID      int64
	nextExpID     int64
	nextEmpID     int64
	saleSeq       int64
	expenseSeq    int64
	failExpenseWr bool
}

func New() *Store {
	return &Store{
		transactions: make(map[int64]*domain.Transaction),
		expenses:     make(map[int64]*domain.Expense),
		settings:     make(map[string]domain.Setting),
		nextTxID:     1,
		nextExpID:    1,
		nextEmpID:    1,
	}
}

// NewSeeded returns a store preloaded with a handful of entries for dev mode.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	seed := []domain.TransactionCreateRequest{
		{Date: "2026-08-02", Description: "Blue sapphire 2.1ct", Weight: "2.1", PurchasePrice: "185000", CertCharges: "4500", GrossSalePrice: "7200", ExchangeRate: "41.5", CommissionRate: "2"},
		{Date: "2026-08-11", Description: "Pink spinel lot", Weight: "5.4", PurchasePrice: "96000", CertCharges: "0", GrossSalePrice: "3100", ExchangeRate: "41.8", CommissionRate: "2"},
		{Date: "2026-08-19", Description: "Yellow sapphire 1.3ct", Weight: "1.3", PurchasePrice: "74000", CertCharges: "3800", GrossSalePrice: "2600", ExchangeRate: "42.0", CommissionRate: "2.5"},
	}
	now := time.Now().UTC()
	for _, req := range seed {
		derived := ledger.ComputeDerived(
			ledger.ParseAmount(req.PurchasePrice),
			ledger.ParseAmount(req.CertCharges),
			ledger.ParseAmount(req.GrossSalePrice),
			ledger.ParseAmount(req.ExchangeRate),
			ledger.ParseAmount(req.CommissionRate),
		)
		_, err := s.InsertTransaction(ctx, domain.Transaction{
			Date:           req.Date,
			Description:    req.Description,
			Weight:         ledger.ParseAmount(req.Weight),
			PurchasePrice:  ledger.ParseAmount(req.PurchasePrice),
			CertCharges:    ledger.ParseAmount(req.CertCharges),
			GrossSalePrice: ledger.ParseAmount(req.GrossSalePrice),
			ExchangeRate:   ledger.ParseAmount(req.ExchangeRate),
			CommissionRate: ledger.ParseAmount(req.CommissionRate),
			TotalCost:      derived.TotalCost,
			ConvertedSale:  derived.ConvertedSale,
			Profit:         derived.Profit,
			Status:         domain.TxStatusActive,
			CreatedAt:      now,
		})
		if err != nil {
			panic(fmt.Sprintf("seed transaction: %v", err))
		}
	}

	_, err := s.InsertExpense(ctx, domain.Expense{
		Date:      "2026-08-05",
		Type:      "Travel",
		Amount:    decimal.NewFromInt(12500),
		Split:     domain.DefaultExpenseSplit,
		CreatedAt: now,
	})
	if err != nil {
		panic(fmt.Sprintf("seed expense: %v", err))
	}

	_, err = s.ReplaceEmployees(ctx, []domain.Employee{
		{Name: "Kamal", Commission: decimal.NewFromInt(2)},
		{Name: "Nuwan", Commission: decimal.NewFromFloat(1.5)},
	})
	if err != nil {
		panic(fmt.Sprintf("seed employees: %v", err))
	}

	return s
}

func (s *Store) InsertTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Date == "" {
		return nil, store.ErrInvalidInput
	}
	if tx.SaleID == "" {
		tx.SaleID = ledger.FormatSaleID(s.saleSeq + 1)
	}
	for _, existing := range s.transactions {
		if existing.SaleID == tx.SaleID && !existing.Canceled {
			return nil, store.ErrDuplicateSaleID
		}
	}

	if seq := ledger.SaleIDSequence(tx.SaleID); seq > s.saleSeq {
		s.saleSeq = seq
	}
	tx.ID = s.nextTxID
	s.nextTxID++
	if tx.Status == "" {
		tx.Status = domain.TxStatusActive
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.transactions[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.Date == b.Date {
			return cmpInt64(a.ID, b.ID)
		}
		return cmpString(a.Date, b.Date)
	})
	return result, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.transactions[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) CancelTransaction(_ context.Context, tx domain.Transaction, compensating domain.Expense) (*domain.Transaction, *domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; !exists {
		return nil, nil, store.ErrNotFound
	}
	s.transactions[tx.ID] = cloneTransaction(&tx)

	if s.failExpenseWr {
		return cloneTransaction(&tx), nil, fmt.Errorf("insert compensating expense: %w", store.ErrCancellationTornWrite)
	}

	saved, err := s.insertExpenseLocked(compensating)
	if err != nil {
		return cloneTransaction(&tx), nil, fmt.Errorf("insert compensating expense: %w", store.ErrCancellationTornWrite)
	}
	return cloneTransaction(&tx), saved, nil
}

func (s *Store) PeekNextSaleID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger.FormatSaleID(s.saleSeq + 1), nil
}

func (s *Store) InsertExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertExpenseLocked(expense)
}

func (s *Store) insertExpenseLocked(expense domain.Expense) (*domain.Expense, error) {
	if expense.Date == "" || strings.TrimSpace(expense.Type) == "" {
		return nil, store.ErrInvalidInput
	}
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if expense.ExpenseID == "" {
		s.expenseSeq++
		expense.ExpenseID = ledger.FormatExpenseID(s.expenseSeq)
	} else if seq := ledger.ExpenseIDSequence(expense.ExpenseID); seq > s.expenseSeq {
		s.expenseSeq = seq
	}
	expense.ID = s.nextExpID
	s.nextExpID++
	if expense.Split == 0 {
		expense.Split = domain.DefaultExpenseSplit
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	saved := expense
	s.expenses[expense.ID] = &saved
	result := saved
	return &result, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		result = append(result, *e)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.Date == b.Date {
			return cmpInt64(a.ID, b.ID)
		}
		return cmpString(a.Date, b.Date)
	})
	return result, nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.expenses {
		if e.ExpenseID == expenseID {
			delete(s.expenses, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ReplaceEmployees(_ context.Context, employees []domain.Employee) ([]domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(employees))
	next := make([]domain.Employee, 0, len(employees))
	for _, emp := range employees {
		emp.Name = strings.TrimSpace(emp.Name)
		if emp.Name == "" || !emp.Commission.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		if _, dup := seen[emp.Name]; dup {
			return nil, store.ErrInvalidInput
		}
		seen[emp.Name] = struct{}{}
		emp.ID = s.nextEmpID
		s.nextEmpID++
		next = append(next, emp)
	}

	s.employees = next
	result := make([]domain.Employee, len(next))
	copy(result, next)
	return result, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Employee, len(s.employees))
	copy(result, s.employees)
	slices.SortFunc(result, func(a, b domain.Employee) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) ListSettings(_ context.Context) ([]domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Setting, 0, len(s.settings))
	for _, setting := range s.settings {
		result = append(result, setting)
	}
	slices.SortFunc(result, func(a, b domain.Setting) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) PutSetting(_ context.Context, setting domain.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(setting.Name) == "" {
		return store.ErrInvalidInput
	}
	s.settings[setting.Name] = setting
	return nil
}

// FailNextExpenseWrites makes CancelTransaction persist the transaction but
// fail the compensating expense, simulating a torn write for tests.
func (s *Store) FailNextExpenseWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failExpenseWr = fail
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cmpInt64(a int64, b int64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	if src.CanceledAt != nil {
		at := *src.CanceledAt
		dup.CanceledAt = &at
	}
	if src.OriginalValues != nil {
		ov := *src.OriginalValues
		dup.OriginalValues = &ov
	}
	return &dup
}
