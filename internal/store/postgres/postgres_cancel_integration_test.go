package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gemtrack/backend/internal/domain"
)

func TestCancelTransactionWritesCompensatingExpense(t *testing.T) {
	databaseURL := os.Getenv("GEMTRACK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GEMTRACK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	saleID := fmt.Sprintf("GS-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM expenses WHERE related_sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE sale_id = $1`, saleID)
	})

	created, err := s.InsertTransaction(ctx, domain.Transaction{
		SaleID:         saleID,
		Date:           "2026-08-20",
		Description:    "integration cancel",
		PurchasePrice:  decimal.NewFromInt(1000),
		CertCharges:    decimal.NewFromInt(50),
		GrossSalePrice: decimal.NewFromInt(50),
		ExchangeRate:   decimal.NewFromInt(30),
		CommissionRate: decimal.NewFromInt(2),
		TotalCost:      decimal.NewFromInt(1070),
		ConvertedSale:  decimal.NewFromInt(1470),
		Profit:         decimal.NewFromInt(400),
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}

	at := time.Now().UTC()
	canceled := *created
	canceled.Status = domain.TxStatusCanceled
	canceled.Canceled = true
	canceled.CanceledAt = &at
	canceled.OriginalValues = &domain.OriginalValues{
		PurchasePrice: created.PurchasePrice,
		ConvertedSale: created.ConvertedSale,
	}
	canceled.PurchasePrice = decimal.Zero
	canceled.GrossSalePrice = decimal.Zero
	canceled.ConvertedSale = decimal.Zero
	canceled.TotalCost = decimal.Zero
	canceled.Profit = created.CertCharges.Neg()

	_, expense, err := s.CancelTransaction(ctx, canceled, domain.Expense{
		Date:          at.Format("2006-01-02"),
		Type:          domain.ExpenseTypeCancellation,
		Amount:        created.CertCharges,
		Split:         domain.DefaultExpenseSplit,
		RelatedSaleID: saleID,
		CreatedAt:     at,
	})
	if err != nil {
		t.Fatalf("cancel transaction: %v", err)
	}
	if expense == nil || expense.ExpenseID == "" {
		t.Fatalf("expected compensating expense with assigned identifier, got %+v", expense)
	}

	var status string
	var profit decimal.Decimal
	if err := s.db.QueryRowContext(ctx, `
		SELECT status, profit
		FROM transactions
		WHERE sale_id = $1
	`, saleID).Scan(&status, &profit); err != nil {
		t.Fatalf("query transaction: %v", err)
	}
	if status != domain.TxStatusCanceled {
		t.Fatalf("expected status canceled, got %s", status)
	}
	if !profit.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("expected profit -50 after cancel, got %s", profit)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM expenses
		WHERE related_sale_id = $1 AND type = $2
	`, saleID, domain.ExpenseTypeCancellation).Scan(&count); err != nil {
		t.Fatalf("query expenses: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one compensating expense, got %d", count)
	}
}
