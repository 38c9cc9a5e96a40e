package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxStatusActive   = "active"
	TxStatusCanceled = "canceled"
)

// ExpenseTypeCancellation marks expenses synthesized when a sale is canceled.
const ExpenseTypeCancellation = "Transaction Cancellation"

const DefaultExpenseSplit = 50

// OriginalValues snapshots the monetary state of a sale at cancellation time.
type OriginalValues struct {
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	ConvertedSale decimal.Decimal `json:"converted_sale"`
}

type Transaction struct {
	ID             int64           `json:"id"`
	SaleID         string          `json:"sale_id"`
	Date           string          `json:"date"`
	Description    string          `json:"description"`
	Weight         decimal.Decimal `json:"weight"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	CertCharges    decimal.Decimal `json:"cert_charges"`
	GrossSalePrice decimal.Decimal `json:"gross_sale_price"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	ConvertedSale  decimal.Decimal `json:"converted_sale"`
	Profit         decimal.Decimal `json:"profit"`
	Status         string          `json:"status"`
	Canceled       bool            `json:"canceled"`
	CreatedAt      time.Time       `json:"created_at"`
	CanceledAt     *time.Time      `json:"canceled_at,omitempty"`
	OriginalValues *OriginalValues `json:"original_values,omitempty"`
}

// TransactionCreateRequest carries raw form input. Numeric fields arrive as
// strings and parse permissively (unparseable values become zero).
type TransactionCreateRequest struct {
	Date           string `json:"date"`
	Description    string `json:"description"`
	Weight         string `json:"weight"`
	PurchasePrice  string `json:"purchase_price"`
	CertCharges    string `json:"cert_charges"`
	GrossSalePrice string `json:"gross_sale_price"`
	ExchangeRate   string `json:"exchange_rate"`
	CommissionRate string `json:"commission_rate"`
}

type TransactionCancelRequest struct {
	SaleID string `json:"sale_id"`
}

type TransactionResponse struct {
	Transaction Transaction `json:"transaction"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type NextSaleIDResponse struct {
	SaleID string `json:"sale_id"`
}

type ReconcileResponse struct {
	Repaired []string `json:"repaired"`
}

type Expense struct {
	ID            int64           `json:"id"`
	ExpenseID     string          `json:"expense_id"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Split         int             `json:"split"`
	RelatedSaleID string          `json:"related_sale_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Date   string `json:"date"`
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Split  *int   `json:"split,omitempty"`
}

type ExpenseCancelRequest struct {
	ExpenseID string `json:"expense_id"`
}

type ExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type ExpenseListResponse struct {
	Expenses []Expense `json:"expenses"`
}

type Employee struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Commission decimal.Decimal `json:"commission"`
}

type EmployeeEntry struct {
	Name       string `json:"name"`
	Commission string `json:"commission"`
}

type EmployeeSaveRequest struct {
	Employees []EmployeeEntry `json:"employees"`
}

type EmployeeListResponse struct {
	Employees []Employee `json:"employees"`
}

type ProfitSharing struct {
	PartnerA int `json:"partner_a"`
	PartnerB int `json:"partner_b"`
}

type Settings struct {
	DefaultExchangeRate decimal.Decimal `json:"default_exchange_rate"`
	DefaultCommission   decimal.Decimal `json:"default_commission"`
	ProfitSharing       ProfitSharing   `json:"profit_sharing"`
	AppName             string          `json:"app_name"`
	TitleFontWeight     int             `json:"title_font_weight"`
	LastSync            *time.Time      `json:"last_sync,omitempty"`
}

// Setting is a single persisted registry entry; Value holds the JSON
// encoding of the key's value.
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type SettingsSaveRequest struct {
	DefaultExchangeRate string        `json:"default_exchange_rate"`
	DefaultCommission   string        `json:"default_commission"`
	ProfitSharing       ProfitSharing `json:"profit_sharing"`
	AppName             string        `json:"app_name"`
	TitleFontWeight     int           `json:"title_font_weight"`
}

type SettingsResponse struct {
	Settings Settings `json:"settings"`
}

const (
	ReportKindTransactions       = "transactions"
	ReportKindCanceled           = "canceled"
	ReportKindPurchaseCommission = "purchase-commission"
	ReportKindExpenses           = "expenses"
)

type ReportRequest struct {
	Kind      string `json:"kind"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type TransactionReport struct {
	Count        int             `json:"count"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	Transactions []Transaction   `json:"transactions"`
}

type CanceledReport struct {
	Count        int             `json:"count"`
	TotalLoss    decimal.Decimal `json:"total_loss"`
	Transactions []Transaction   `json:"transactions"`
}

type CommissionLine struct {
	SaleID        string          `json:"sale_id"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Rate          decimal.Decimal `json:"rate"`
	Commission    decimal.Decimal `json:"commission"`
}

type PurchaseCommissionReport struct {
	Count           int              `json:"count"`
	TotalPurchases  decimal.Decimal  `json:"total_purchases"`
	TotalCommission decimal.Decimal  `json:"total_commission"`
	Lines           []CommissionLine `json:"lines"`
}

type ExpenseReport struct {
	Count    int                        `json:"count"`
	Total    decimal.Decimal            `json:"total"`
	ByType   map[string]decimal.Decimal `json:"by_type"`
	Expenses []Expense                  `json:"expenses"`
}

type ReportSummary struct {
	Kind               string                    `json:"kind"`
	StartDate          string                    `json:"start_date"`
	EndDate            string                    `json:"end_date"`
	NoData             bool                      `json:"no_data"`
	Transactions       *TransactionReport        `json:"transactions,omitempty"`
	Canceled           *CanceledReport           `json:"canceled,omitempty"`
	PurchaseCommission *PurchaseCommissionReport `json:"purchase_commission,omitempty"`
	Expenses           *ExpenseReport            `json:"expenses,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Email string
}
