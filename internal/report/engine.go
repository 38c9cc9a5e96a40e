// Package report turns the bookkeeping records into period-bounded summaries.
package report

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gemtrack/backend/internal/cache"
	"gemtrack/backend/internal/domain"
	"gemtrack/backend/internal/ledger"
)

var ErrUnknownKind = errors.New("unknown report kind")

// Snapshot is the data a report runs over. The caller hands in a consistent
// copy of its state; the engine never reads storage itself.
type Snapshot struct {
	Transactions []domain.Transaction
	Expenses     []domain.Expense
	Version      int64
}

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Generate builds the summary for a report kind over [StartDate, EndDate],
// bounds inclusive. An empty result set is a valid summary with NoData set,
// not an error. Cache keys carry the snapshot version, so entries written
// before a mutation simply expire unused.
func (e *Engine) Generate(ctx context.Context, req domain.ReportRequest, snap Snapshot) (domain.ReportSummary, error) {
	summary := domain.ReportSummary{
		Kind:      req.Kind,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}

	switch req.Kind {
	case domain.ReportKindTransactions, domain.ReportKindCanceled,
		domain.ReportKindPurchaseCommission, domain.ReportKindExpenses:
	default:
		return summary, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}

	cacheKey := buildCacheKey(req, snap.Version)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	switch req.Kind {
	case domain.ReportKindTransactions:
		summary.Transactions = transactionReport(snap.Transactions, req.StartDate, req.EndDate)
		summary.NoData = summary.Transactions.Count == 0
	case domain.ReportKindCanceled:
		summary.Canceled = canceledReport(snap.Transactions, req.StartDate, req.EndDate)
		summary.NoData = summary.Canceled.Count == 0
	case domain.ReportKindPurchaseCommission:
		summary.PurchaseCommission = purchaseCommissionReport(snap.Transactions, req.StartDate, req.EndDate)
		summary.NoData = summary.PurchaseCommission.Count == 0
	case domain.ReportKindExpenses:
		summary.Expenses = expenseReport(snap.Expenses, req.StartDate, req.EndDate)
		summary.NoData = summary.Expenses.Count == 0
	}

	_ = e.cache.Set(ctx, cacheKey, &summary, e.cacheTTL)
	return summary, nil
}

func transactionReport(transactions []domain.Transaction, start, end string) *domain.TransactionReport {
	active := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if !tx.Canceled {
			active = append(active, tx)
		}
	}
	inRange := ledger.FilterByDateRange(active, transactionDate, start, end)

	return &domain.TransactionReport{
		Count:        len(inRange),
		TotalSales:   ledger.SumField(inRange, func(t domain.Transaction) decimal.Decimal { return t.ConvertedSale }),
		TotalCost:    ledger.SumField(inRange, func(t domain.Transaction) decimal.Decimal { return t.TotalCost }),
		NetProfit:    ledger.SumField(inRange, func(t domain.Transaction) decimal.Decimal { return t.Profit }),
		Transactions: inRange,
	}
}

func canceledReport(transactions []domain.Transaction, start, end string) *domain.CanceledReport {
	canceled := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Canceled {
			canceled = append(canceled, tx)
		}
	}
	inRange := ledger.FilterByDateRange(canceled, transactionDate, start, end)

	return &domain.CanceledReport{
		Count:        len(inRange),
		TotalLoss:    ledger.SumField(inRange, func(t domain.Transaction) decimal.Decimal { return t.CertCharges }),
		Transactions: inRange,
	}
}

func purchaseCommissionReport(transactions []domain.Transaction, start, end string) *domain.PurchaseCommissionReport {
	active := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if !tx.Canceled {
			active = append(active, tx)
		}
	}
	inRange := ledger.FilterByDateRange(active, transactionDate, start, end)

	lines := make([]domain.CommissionLine, 0, len(inRange))
	for _, tx := range inRange {
		lines = append(lines, domain.CommissionLine{
			SaleID:        tx.SaleID,
			Date:          tx.Date,
			Description:   tx.Description,
			PurchasePrice: tx.PurchasePrice,
			Rate:          tx.CommissionRate,
			Commission:    ledger.PurchaseCommission(tx.PurchasePrice, tx.CommissionRate),
		})
	}

	return &domain.PurchaseCommissionReport{
		Count:           len(lines),
		TotalPurchases:  ledger.SumField(inRange, func(t domain.Transaction) decimal.Decimal { return t.PurchasePrice }),
		TotalCommission: ledger.SumField(lines, func(l domain.CommissionLine) decimal.Decimal { return l.Commission }),
		Lines:           lines,
	}
}

func expenseReport(expenses []domain.Expense, start, end string) *domain.ExpenseReport {
	inRange := ledger.FilterByDateRange(expenses, func(e domain.Expense) string { return e.Date }, start, end)

	return &domain.ExpenseReport{
		Count: len(inRange),
		Total: ledger.SumField(inRange, func(e domain.Expense) decimal.Decimal { return e.Amount }),
		ByType: ledger.GroupSum(inRange,
			func(e domain.Expense) string { return e.Type },
			func(e domain.Expense) decimal.Decimal { return e.Amount }),
		Expenses: inRange,
	}
}

func transactionDate(t domain.Transaction) string {
	return t.Date
}

func buildCacheKey(req domain.ReportRequest, version int64) string {
	parts := []string{
		fmt.Sprintf("v:%d", version),
		req.Kind,
		req.StartDate,
		req.EndDate,
	}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "gemtrack:report:" + hex.EncodeToString(hash[:])
}
