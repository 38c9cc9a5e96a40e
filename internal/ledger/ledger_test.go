package ledger

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeDerivedWorkedExample(t *testing.T) {
	// 1000 LKR purchase, 50 cert, 50 RMB gross, rate 30, commission 2%.
	d := ComputeDerived(dec("1000"), dec("50"), dec("50"), dec("30"), dec("2"))

	if !d.TotalCost.Equal(dec("1070")) {
		t.Fatalf("total cost = %s, want 1070", d.TotalCost)
	}
	if !d.ConvertedSale.Equal(dec("1470")) {
		t.Fatalf("converted sale = %s, want 1470", d.ConvertedSale)
	}
	if !d.Profit.Equal(dec("400")) {
		t.Fatalf("profit = %s, want 400", d.Profit)
	}
}

func TestComputeDerivedProfitIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		purchase := decimal.NewFromFloat(rng.Float64() * 100000).Round(2)
		cert := decimal.NewFromFloat(rng.Float64() * 1000).Round(2)
		gross := decimal.NewFromFloat(rng.Float64() * 5000).Round(2)
		rate := decimal.NewFromFloat(rng.Float64() * 100).Round(4)
		pct := decimal.NewFromFloat(rng.Float64() * 20).Round(2)

		d := ComputeDerived(purchase, cert, gross, rate, pct)
		if !d.Profit.Equal(d.ConvertedSale.Sub(d.TotalCost)) {
			t.Fatalf("profit identity broken: %s != %s - %s", d.Profit, d.ConvertedSale, d.TotalCost)
		}
	}
}

func TestComputeDerivedZeroInputs(t *testing.T) {
	d := ComputeDerived(decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero)
	if !d.TotalCost.IsZero() || !d.ConvertedSale.IsZero() || !d.Profit.IsZero() {
		t.Fatalf("zero inputs should derive zeros, got %+v", d)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1000", "1000"},
		{" 12.50 ", "12.5"},
		{"-3", "-3"},
		{"", "0"},
		{"abc", "0"},
		{"12,5", "0"},
	}
	for _, c := range cases {
		if got := ParseAmount(c.in); !got.Equal(dec(c.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestSumFieldPermutationInvariant(t *testing.T) {
	vals := []decimal.Decimal{dec("1.1"), dec("2.2"), dec("3.3"), dec("4.4")}
	ident := func(d decimal.Decimal) decimal.Decimal { return d }

	want := SumField(vals, ident)
	for i := 0; i < 10; i++ {
		shuffled := append([]decimal.Decimal(nil), vals...)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := SumField(shuffled, ident); !got.Equal(want) {
			t.Fatalf("sum changed under permutation: %s != %s", got, want)
		}
	}
}

func TestGroupSum(t *testing.T) {
	type row struct {
		kind string
		amt  string
	}
	rows := []row{
		{"Rent", "100"},
		{"Travel", "40"},
		{"Rent", "55.5"},
	}
	got := GroupSum(rows,
		func(r row) string { return r.kind },
		func(r row) decimal.Decimal { return dec(r.amt) })

	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	if !got["Rent"].Equal(dec("155.5")) {
		t.Errorf("Rent = %s, want 155.5", got["Rent"])
	}
	if !got["Travel"].Equal(dec("40")) {
		t.Errorf("Travel = %s, want 40", got["Travel"])
	}
}

func TestFilterByDateRangeInclusiveBounds(t *testing.T) {
	dates := []string{"2024-01-31", "2024-02-01", "2024-02-15", "2024-02-29", "2024-03-01"}
	got := FilterByDateRange(dates, func(s string) string { return s }, "2024-02-01", "2024-02-29")

	want := []string{"2024-02-01", "2024-02-15", "2024-02-29"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNextSaleID(t *testing.T) {
	cases := []struct {
		existing []string
		want     string
	}{
		{nil, "GS-00001"},
		{[]string{"GS-00001", "GS-00002"}, "GS-00003"},
		{[]string{"GS-00009", "GS-00002"}, "GS-00010"},
		{[]string{"GS-99999"}, "GS-100000"},
		{[]string{"junk", "GS-abc", "GS-00004"}, "GS-00005"},
	}
	for _, c := range cases {
		if got := NextSaleID(c.existing); got != c.want {
			t.Errorf("NextSaleID(%v) = %q, want %q", c.existing, got, c.want)
		}
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	if got := SaleIDSequence(FormatSaleID(42)); got != 42 {
		t.Fatalf("sale sequence round trip = %d", got)
	}
	if got := ExpenseIDSequence(FormatExpenseID(7)); got != 7 {
		t.Fatalf("expense sequence round trip = %d", got)
	}
	if got := SaleIDSequence("EXP-00001"); got != 0 {
		t.Fatalf("cross-prefix parse should be 0, got %d", got)
	}
}
