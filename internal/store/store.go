package store

import (
	"context"
	"errors"

	"gemtrack/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrDuplicateSaleID = errors.New("duplicate sale id")
)

type Repository interface {
	// InsertTransaction assigns the numeric id and, when tx.SaleID is empty,
	// the next sale identifier from the persisted sequence, in the same
	// atomic step as the write. A sale identifier already carried by a
	// non-canceled record is rejected with ErrDuplicateSaleID.
	InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// CancelTransaction persists the canceled transaction state together
	// with its compensating expense. Implementations make the pair as
	// atomic as the backend allows; when the expense write fails after the
	// transaction write, the error wraps ErrCancellationTornWrite.
	CancelTransaction(ctx context.Context, tx domain.Transaction, compensating domain.Expense) (*domain.Transaction, *domain.Expense, error)
	// PeekNextSaleID previews the identifier the next insert would assign.
	PeekNextSaleID(ctx context.Context) (string, error)

	InsertExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, expenseID string) error

	ReplaceEmployees(ctx context.Context, employees []domain.Employee) ([]domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)

	ListSettings(ctx context.Context) ([]domain.Setting, error)
	PutSetting(ctx context.Context, setting domain.Setting) error
}

// ErrCancellationTornWrite marks a cancellation where the transaction row
// was updated but the compensating expense did not persist.
var ErrCancellationTornWrite = errors.New("cancellation persisted without compensating expense")
