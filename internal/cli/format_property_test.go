package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var moneyPattern = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*\.\d{2}$`)

func TestProperty_MoneyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatMoney groups thousands with two decimals", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatMoney(amount)
			if !moneyPattern.MatchString(formatted) {
				t.Logf("Invalid format for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatMoney preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatMoney(amount)
			parsed, err := strconv.ParseFloat(strings.ReplaceAll(formatted, ",", ""), 64)
			if err != nil {
				return false
			}
			if diff := math.Abs(parsed - amount); diff > 0.005+1e-9 {
				t.Logf("Value not preserved: original=%f, formatted=%s, parsed=%f", amount, formatted, parsed)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPercent signs positive values", prop.ForAll(
		func(value float64) bool {
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				return false
			}
			return value <= 0 || strings.HasPrefix(formatted, "+")
		},
		gen.Float64Range(-100, 100),
	))

	properties.Property("FormatPrice shows one digit beyond the pip", prop.ForAll(
		func(price float64, jpy bool) bool {
			pip, want := 0.0001, 5
			if jpy {
				pip, want = 0.01, 3
			}
			formatted := FormatPrice(price, pip)
			parts := strings.Split(formatted, ".")
			return len(parts) == 2 && len(parts[1]) == want
		},
		gen.Float64Range(0.5, 200),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestFormatMoneyExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "0.00"},
		{1, "1.00"},
		{999.99, "999.99"},
		{1000, "1,000.00"},
		{100000, "100,000.00"},
		{1234567.891, "1,234,567.89"},
		{-1234.56, "-1,234.56"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := FormatMoney(tc.amount); result != tc.expected {
				t.Errorf("FormatMoney(%f) = %s, want %s", tc.amount, result, tc.expected)
			}
		})
	}
}

func TestFormatPercentExamples(t *testing.T) {
	testCases := []struct {
		value    float64
		expected string
	}{
		{0, "0.00%"},
		{1.5, "+1.50%"},
		{-2.5, "-2.50%"},
		{100, "+100.00%"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := FormatPercent(tc.value); result != tc.expected {
				t.Errorf("FormatPercent(%f) = %s, want %s", tc.value, result, tc.expected)
			}
		})
	}
}

func TestFormatSmallHelpers(t *testing.T) {
	if got := FormatR(1.5); got != "+1.50R" {
		t.Errorf("FormatR = %s", got)
	}
	if got := FormatR(-1); got != "-1.00R" {
		t.Errorf("FormatR = %s", got)
	}
	if got := FormatPnL(12.5); got != "+12.50" {
		t.Errorf("FormatPnL = %s", got)
	}
	if got := FormatDuration(90 * time.Minute); got != "1h 30m" {
		t.Errorf("FormatDuration = %s", got)
	}
	if got := TruncateString("abcdefgh", 6); got != "abc..." {
		t.Errorf("TruncateString = %s", got)
	}
	if got := FormatDateTime(time.Time{}); got != "-" {
		t.Errorf("FormatDateTime(zero) = %s", got)
	}
}
