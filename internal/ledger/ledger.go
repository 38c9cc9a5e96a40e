// Package ledger holds the pure calculations behind the bookkeeping flows:
// derived transaction figures, aggregate sums, date-range filtering and the
// human-readable sequence identifiers. Nothing here touches storage.
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Derived carries the figures computed from a sale's raw inputs.
type Derived struct {
	TotalCost     decimal.Decimal
	ConvertedSale decimal.Decimal
	Profit        decimal.Decimal
}

// ComputeDerived derives cost, converted sale and profit from raw inputs.
// Purchase-side commission is a percentage of the purchase price; sale-side
// commission is deducted from the gross sale before currency conversion.
func ComputeDerived(purchase, cert, gross, rate, commissionPct decimal.Decimal) Derived {
	purchaseCommission := purchase.Mul(commissionPct).Div(hundred)
	totalCost := purchase.Add(cert).Add(purchaseCommission)

	saleCommission := gross.Mul(commissionPct).Div(hundred)
	convertedSale := gross.Sub(saleCommission).Mul(rate)

	return Derived{
		TotalCost:     totalCost,
		ConvertedSale: convertedSale,
		Profit:        convertedSale.Sub(totalCost),
	}
}

// PurchaseCommission returns the commission owed on the purchase side alone.
func PurchaseCommission(purchase, commissionPct decimal.Decimal) decimal.Decimal {
	return purchase.Mul(commissionPct).Div(hundred)
}

// ParseAmount converts raw form input into a decimal. Anything that does not
// parse, including the empty string, becomes zero.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SumField totals the selected field over a slice.
func SumField[T any](records []T, selector func(T) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(selector(r))
	}
	return total
}

// GroupSum totals the selected field per key.
func GroupSum[T any](records []T, key func(T) string, selector func(T) decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		k := key(r)
		out[k] = out[k].Add(selector(r))
	}
	return out
}

// FilterByDateRange keeps records whose date falls inside [start, end],
// bounds inclusive. Dates are YYYY-MM-DD strings; the fixed-width zero-padded
// format makes lexicographic comparison equivalent to chronological order.
func FilterByDateRange[T any](records []T, date func(T) string, start, end string) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		d := date(r)
		if d >= start && d <= end {
			out = append(out, r)
		}
	}
	return out
}

const (
	saleIDPrefix    = "GS-"
	expenseIDPrefix = "EXP-"
)

// FormatSaleID renders the nth sale identifier, zero-padded to five digits.
func FormatSaleID(n int64) string {
	return fmt.Sprintf("%s%05d", saleIDPrefix, n)
}

// FormatExpenseID renders the nth expense identifier.
func FormatExpenseID(n int64) string {
	return fmt.Sprintf("%s%05d", expenseIDPrefix, n)
}

// SaleIDSequence extracts the numeric suffix of a sale identifier. Returns 0
// for identifiers that do not follow the GS-NNNNN shape.
func SaleIDSequence(id string) int64 {
	return sequenceOf(id, saleIDPrefix)
}

// ExpenseIDSequence extracts the numeric suffix of an expense identifier.
func ExpenseIDSequence(id string) int64 {
	return sequenceOf(id, expenseIDPrefix)
}

// NextSaleID returns the identifier after the highest numeric suffix among
// the existing ones, or GS-00001 when none exist. Malformed identifiers are
// ignored.
func NextSaleID(existing []string) string {
	var max int64
	for _, id := range existing {
		if n := SaleIDSequence(id); n > max {
			max = n
		}
	}
	return FormatSaleID(max + 1)
}

func sequenceOf(id, prefix string) int64 {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
