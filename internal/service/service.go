package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gemtrack/backend/internal/domain"
	"gemtrack/backend/internal/ledger"
	"gemtrack/backend/internal/report"
	"gemtrack/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ErrCancellationIncomplete reports a cancellation where the transaction was
// marked canceled but the compensating expense did not persist. The caller
// should retry via reconciliation; the sale stays canceled either way.
var ErrCancellationIncomplete = errors.New("transaction canceled but expense record failed, retry reconciliation")

// Service orchestrates the bookkeeping flows. It holds an in-memory mirror
// of the persisted collections so reads and report generation never touch
// storage; every mutation persists first and updates the mirror only after
// the store confirms.
type Service struct {
	repo   store.Repository
	engine *report.Engine

	mu           sync.RWMutex
	transactions []domain.Transaction
	expenses     []domain.Expense
	employees    []domain.Employee
	settings     domain.Settings
	version      int64

	cancelMu sync.Mutex
	inFlight map[string]*saleLock
}

// saleLock serializes cancellations of one sale id. refs counts holders and
// waiters so the map entry can be dropped once the last one releases.
type saleLock struct {
	mu   sync.Mutex
	refs int
}

func New(repo store.Repository, engine *report.Engine) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		settings: defaultSettings(),
		inFlight: make(map[string]*saleLock),
	}
}

func defaultSettings() domain.Settings {
	return domain.Settings{
		DefaultExchangeRate: decimal.NewFromInt(50),
		DefaultCommission:   decimal.NewFromInt(2),
		ProfitSharing:       domain.ProfitSharing{PartnerA: 60, PartnerB: 40},
		AppName:             "Gemstone Tracker",
		TitleFontWeight:     600,
	}
}

// Load pulls all collections from the store into the mirror and merges
// persisted settings over the compiled-in defaults. When the settings
// registry is empty the defaults are written back once.
func (s *Service) Load(ctx context.Context) error {
	transactions, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	expenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return fmt.Errorf("load expenses: %w", err)
	}
	employees, err := s.repo.ListEmployees(ctx)
	if err != nil {
		return fmt.Errorf("load employees: %w", err)
	}
	persisted, err := s.repo.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	settings := defaultSettings()
	if len(persisted) == 0 {
		if err := s.persistSettings(ctx, settings); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		log.Printf("[service] seeded default settings")
	} else {
		mergeSettings(&settings, persisted)
	}

	s.mu.Lock()
	s.transactions = transactions
	s.expenses = expenses
	s.employees = employees
	s.settings = settings
	s.version++
	s.mu.Unlock()

	log.Printf("[service] loaded %d transactions, %d expenses, %d employees", len(transactions), len(expenses), len(employees))
	return nil
}

func (s *Service) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Transaction, len(s.transactions))
	copy(result, s.transactions)
	return result, nil
}

func (s *Service) NextSaleID(ctx context.Context) (string, error) {
	return s.repo.PeekNextSaleID(ctx)
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	purchase := ledger.ParseAmount(req.PurchasePrice)
	cert := ledger.ParseAmount(req.CertCharges)
	gross := ledger.ParseAmount(req.GrossSalePrice)
	rate := ledger.ParseAmount(req.ExchangeRate)
	commission := ledger.ParseAmount(req.CommissionRate)

	// Defaults fill in omitted fields only. A supplied value that parses to
	// zero (including junk input) stays zero; 0% commission is a valid entry.
	s.mu.RLock()
	if strings.TrimSpace(req.ExchangeRate) == "" {
		rate = s.settings.DefaultExchangeRate
	}
	if strings.TrimSpace(req.CommissionRate) == "" {
		commission = s.settings.DefaultCommission
	}
	s.mu.RUnlock()

	derived := ledger.ComputeDerived(purchase, cert, gross, rate, commission)

	tx := domain.Transaction{
		Date:           date,
		Description:    strings.TrimSpace(req.Description),
		Weight:         ledger.ParseAmount(req.Weight),
		PurchasePrice:  purchase,
		CertCharges:    cert,
		GrossSalePrice: gross,
		ExchangeRate:   rate,
		CommissionRate: commission,
		TotalCost:      derived.TotalCost,
		ConvertedSale:  derived.ConvertedSale,
		Profit:         derived.Profit,
		Status:         domain.TxStatusActive,
		CreatedAt:      time.Now().UTC(),
	}

	created, err := s.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.mu.Lock()
	s.transactions = append(s.transactions, *created)
	s.version++
	s.mu.Unlock()

	log.Printf("[service] transaction created sale_id=%s profit=%s", created.SaleID, created.Profit)
	return *created, nil
}

// CancelTransaction marks the sale canceled and books a compensating expense
// for the certificate charges. Concurrent cancellations of the same sale
// identifier are serialized; the loser sees the record already canceled.
func (s *Service) CancelTransaction(ctx context.Context, saleID string) (domain.Transaction, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	guard := s.lockSale(saleID)
	defer s.unlockSale(saleID, guard)

	s.mu.RLock()
	var current *domain.Transaction
	for i := range s.transactions {
		if s.transactions[i].SaleID == saleID && !s.transactions[i].Canceled {
			tx := s.transactions[i]
			current = &tx
			break
		}
	}
	s.mu.RUnlock()
	if current == nil {
		return domain.Transaction{}, store.ErrNotFound
	}

	at := time.Now().UTC()
	canceled := *current
	canceled.OriginalValues = &domain.OriginalValues{
		PurchasePrice: current.PurchasePrice,
		ConvertedSale: current.ConvertedSale,
	}
	// Purchase and sale prices are zeroed; the accrued total cost stays on
	// the record for audit.
	canceled.PurchasePrice = decimal.Zero
	canceled.GrossSalePrice = decimal.Zero
	canceled.ConvertedSale = decimal.Zero
	canceled.Profit = current.CertCharges.Neg()
	canceled.Status = domain.TxStatusCanceled
	canceled.Canceled = true
	canceled.CanceledAt = &at

	// No certificate charges means nothing to write off, so the cancellation
	// needs no compensating expense.
	if !current.CertCharges.IsPositive() {
		savedTx, err := s.repo.UpdateTransaction(ctx, canceled)
		if err != nil {
			return domain.Transaction{}, err
		}
		s.replaceTransaction(*savedTx)
		log.Printf("[service] transaction canceled sale_id=%s (no cert charges)", saleID)
		return *savedTx, nil
	}

	compensating := domain.Expense{
		Date:          at.Format("2006-01-02"),
		Type:          domain.ExpenseTypeCancellation,
		Amount:        current.CertCharges,
		Split:         domain.DefaultExpenseSplit,
		RelatedSaleID: saleID,
		CreatedAt:     at,
	}

	savedTx, savedExpense, err := s.repo.CancelTransaction(ctx, canceled, compensating)
	if err != nil {
		if errors.Is(err, store.ErrCancellationTornWrite) && savedTx != nil {
			// The sale is canceled in storage; only the expense is missing.
			s.replaceTransaction(*savedTx)
			log.Printf("[service] WARN: cancellation incomplete sale_id=%s: %v", saleID, err)
			return *savedTx, fmt.Errorf("%w: %v", ErrCancellationIncomplete, err)
		}
		return domain.Transaction{}, err
	}

	s.replaceTransaction(*savedTx)
	s.mu.Lock()
	s.expenses = append(s.expenses, *savedExpense)
	s.version++
	s.mu.Unlock()

	log.Printf("[service] transaction canceled sale_id=%s expense_id=%s", saleID, savedExpense.ExpenseID)
	return *savedTx, nil
}

// ReconcileCancellations creates the missing compensating expense for every
// canceled transaction that lacks one. Safe to run repeatedly; transactions
// that already have their expense are skipped, and zero cert charges need no
// expense at all.
func (s *Service) ReconcileCancellations(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	covered := make(map[string]struct{}, len(s.expenses))
	for _, e := range s.expenses {
		if e.Type == domain.ExpenseTypeCancellation && e.RelatedSaleID != "" {
			covered[e.RelatedSaleID] = struct{}{}
		}
	}
	missing := make([]domain.Transaction, 0)
	for _, tx := range s.transactions {
		if !tx.Canceled || !tx.CertCharges.IsPositive() {
			continue
		}
		if _, ok := covered[tx.SaleID]; ok {
			continue
		}
		missing = append(missing, tx)
	}
	s.mu.RUnlock()

	repaired := make([]string, 0, len(missing))
	for _, tx := range missing {
		date := tx.Date
		if tx.CanceledAt != nil {
			date = tx.CanceledAt.Format("2006-01-02")
		}
		saved, err := s.repo.InsertExpense(ctx, domain.Expense{
			Date:          date,
			Type:          domain.ExpenseTypeCancellation,
			Amount:        tx.CertCharges,
			Split:         domain.DefaultExpenseSplit,
			RelatedSaleID: tx.SaleID,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			return repaired, fmt.Errorf("reconcile sale_id=%s: %w", tx.SaleID, err)
		}
		s.mu.Lock()
		s.expenses = append(s.expenses, *saved)
		s.version++
		s.mu.Unlock()
		repaired = append(repaired, tx.SaleID)
		log.Printf("[service] reconciled cancellation sale_id=%s expense_id=%s", tx.SaleID, saved.ExpenseID)
	}
	return repaired, nil
}

func (s *Service) ListExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Expense, len(s.expenses))
	copy(result, s.expenses)
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	amount := ledger.ParseAmount(req.Amount)
	if !amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("%w: amount must be a positive number", store.ErrInvalidInput)
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	expenseType := strings.TrimSpace(req.Type)
	if expenseType == "" {
		return domain.Expense{}, fmt.Errorf("%w: type is required", store.ErrInvalidInput)
	}
	split := domain.DefaultExpenseSplit
	if req.Split != nil {
		if *req.Split < 0 || *req.Split > 100 {
			return domain.Expense{}, fmt.Errorf("%w: split must be between 0 and 100", store.ErrInvalidInput)
		}
		split = *req.Split
	}

	saved, err := s.repo.InsertExpense(ctx, domain.Expense{
		Date:      date,
		Type:      expenseType,
		Amount:    amount,
		Split:     split,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.mu.Lock()
	s.expenses = append(s.expenses, *saved)
	s.version++
	s.mu.Unlock()

	log.Printf("[service] expense created expense_id=%s type=%s", saved.ExpenseID, saved.Type)
	return *saved, nil
}

// CancelExpense removes the expense record entirely. Unlike transactions,
// expenses keep no tombstone.
func (s *Service) CancelExpense(ctx context.Context, expenseID string) error {
	expenseID = strings.TrimSpace(expenseID)
	if expenseID == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteExpense(ctx, expenseID); err != nil {
		return err
	}

	s.mu.Lock()
	for i := range s.expenses {
		if s.expenses[i].ExpenseID == expenseID {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			break
		}
	}
	s.version++
	s.mu.Unlock()

	log.Printf("[service] expense deleted expense_id=%s", expenseID)
	return nil
}

func (s *Service) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Employee, len(s.employees))
	copy(result, s.employees)
	return result, nil
}

// SaveEmployees replaces the whole collection. Entries with a blank name or
// a non-positive commission are dropped before the save, matching how the
// settings form discards incomplete rows.
func (s *Service) SaveEmployees(ctx context.Context, req domain.EmployeeSaveRequest) ([]domain.Employee, error) {
	entries := make([]domain.Employee, 0, len(req.Employees))
	for _, e := range req.Employees {
		name := strings.TrimSpace(e.Name)
		commission := ledger.ParseAmount(e.Commission)
		if name == "" || !commission.IsPositive() {
			continue
		}
		entries = append(entries, domain.Employee{Name: name, Commission: commission})
	}

	saved, err := s.repo.ReplaceEmployees(ctx, entries)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.employees = saved
	s.version++
	s.mu.Unlock()

	log.Printf("[service] employees replaced count=%d", len(saved))
	return saved, nil
}

func (s *Service) Settings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// SaveSettings validates and persists the registry. Keys are written
// independently; a failing key aborts the remainder and the error names it.
// The mirror only picks up the new values after every key persisted.
func (s *Service) SaveSettings(ctx context.Context, req domain.SettingsSaveRequest) (domain.Settings, error) {
	if req.ProfitSharing.PartnerA+req.ProfitSharing.PartnerB != 100 {
		return domain.Settings{}, fmt.Errorf("%w: profit shares must total exactly 100", store.ErrInvalidInput)
	}

	next := domain.Settings{
		DefaultExchangeRate: ledger.ParseAmount(req.DefaultExchangeRate),
		DefaultCommission:   ledger.ParseAmount(req.DefaultCommission),
		ProfitSharing:       req.ProfitSharing,
		AppName:             strings.TrimSpace(req.AppName),
		TitleFontWeight:     req.TitleFontWeight,
	}
	if next.AppName == "" {
		next.AppName = defaultSettings().AppName
	}
	if next.TitleFontWeight == 0 {
		next.TitleFontWeight = defaultSettings().TitleFontWeight
	}

	s.mu.RLock()
	next.LastSync = s.settings.LastSync
	s.mu.RUnlock()

	if err := s.persistSettings(ctx, next); err != nil {
		return domain.Settings{}, err
	}

	s.mu.Lock()
	s.settings = next
	s.version++
	s.mu.Unlock()

	log.Printf("[service] settings saved rate=%s commission=%s split=%d/%d",
		next.DefaultExchangeRate, next.DefaultCommission,
		next.ProfitSharing.PartnerA, next.ProfitSharing.PartnerB)
	return next, nil
}

func (s *Service) GenerateReport(ctx context.Context, req domain.ReportRequest) (domain.ReportSummary, error) {
	req.Kind = strings.TrimSpace(req.Kind)
	if req.StartDate == "" || req.EndDate == "" {
		start, end := monthBounds(time.Now().UTC())
		if req.StartDate == "" {
			req.StartDate = start
		}
		if req.EndDate == "" {
			req.EndDate = end
		}
	}

	s.mu.RLock()
	snap := report.Snapshot{
		Transactions: make([]domain.Transaction, len(s.transactions)),
		Expenses:     make([]domain.Expense, len(s.expenses)),
		Version:      s.version,
	}
	copy(snap.Transactions, s.transactions)
	copy(snap.Expenses, s.expenses)
	s.mu.RUnlock()

	return s.engine.Generate(ctx, req, snap)
}

func (s *Service) persistSettings(ctx context.Context, settings domain.Settings) error {
	entries := []struct {
		name  string
		value any
	}{
		{"defaultExchangeRate", settings.DefaultExchangeRate},
		{"defaultCommission", settings.DefaultCommission},
		{"profitSharing", settings.ProfitSharing},
		{"appName", settings.AppName},
		{"titleFontWeight", settings.TitleFontWeight},
		{"lastSync", settings.LastSync},
	}
	for _, entry := range entries {
		raw, err := json.Marshal(entry.value)
		if err != nil {
			return fmt.Errorf("encode setting %s: %w", entry.name, err)
		}
		if err := s.repo.PutSetting(ctx, domain.Setting{Name: entry.name, Value: string(raw)}); err != nil {
			return fmt.Errorf("persist setting %s: %w", entry.name, err)
		}
	}
	return nil
}

func mergeSettings(settings *domain.Settings, persisted []domain.Setting) {
	for _, entry := range persisted {
		var err error
		switch entry.Name {
		case "defaultExchangeRate":
			err = json.Unmarshal([]byte(entry.Value), &settings.DefaultExchangeRate)
		case "defaultCommission":
			err = json.Unmarshal([]byte(entry.Value), &settings.DefaultCommission)
		case "profitSharing":
			err = json.Unmarshal([]byte(entry.Value), &settings.ProfitSharing)
		case "appName":
			err = json.Unmarshal([]byte(entry.Value), &settings.AppName)
		case "titleFontWeight":
			err = json.Unmarshal([]byte(entry.Value), &settings.TitleFontWeight)
		case "lastSync":
			err = json.Unmarshal([]byte(entry.Value), &settings.LastSync)
		}
		if err != nil {
			log.Printf("[service] WARN: ignoring malformed setting %s: %v", entry.Name, err)
		}
	}
}

func (s *Service) replaceTransaction(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == tx.ID {
			s.transactions[i] = tx
			break
		}
	}
	s.version++
}

func (s *Service) lockSale(saleID string) *saleLock {
	s.cancelMu.Lock()
	guard, ok := s.inFlight[saleID]
	if !ok {
		guard = &saleLock{}
		s.inFlight[saleID] = guard
	}
	guard.refs++
	s.cancelMu.Unlock()

	guard.mu.Lock()
	return guard
}

func (s *Service) unlockSale(saleID string, guard *saleLock) {
	guard.mu.Unlock()

	s.cancelMu.Lock()
	guard.refs--
	if guard.refs == 0 {
		delete(s.inFlight, saleID)
	}
	s.cancelMu.Unlock()
}

func monthBounds(now time.Time) (string, string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}
