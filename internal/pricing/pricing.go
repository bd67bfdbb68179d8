package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/openfolio/billing/internal/errors"
)

// BillingPeriod is the subscription cadence selected at checkout
type BillingPeriod string

const (
	PeriodMonthly  BillingPeriod = "monthly"
	PeriodBiannual BillingPeriod = "biannual"
	PeriodAnnual   BillingPeriod = "annual"
)

// Portfolio count bounds accepted by the engine
const (
	MinPortfolios = 1
	MaxPortfolios = 4
)

var (
	// Base price per portfolio per semester, in currency units excl. tax.
	basePricePerSemester = decimal.NewFromInt(180)

	// Swiss VAT standard rate.
	taxRate = decimal.RequireFromString("0.081")

	// Extra multiplicative discount for annual prepayment.
	annualDiscountRate = decimal.RequireFromString("0.10")

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	// Volume discount by portfolio count.
	volumeDiscounts = map[int]decimal.Decimal{
		1: decimal.Zero,
		2: decimal.RequireFromString("0.10"),
		3: decimal.RequireFromString("0.20"),
		4: decimal.RequireFromString("0.30"),
	}
)

// ParseBillingPeriod normalizes and validates a caller-supplied period value
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	switch BillingPeriod(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodBiannual:
		return PeriodBiannual, nil
	case PeriodAnnual:
		return PeriodAnnual, nil
	default:
		return "", apperrors.ValidationError{
			Field:   "billingPeriod",
			Message: fmt.Sprintf("must be one of monthly, biannual, annual (got %q)", s),
		}
	}
}

// Interval returns the provider recurring interval for the period
func (p BillingPeriod) Interval() (interval string, count int64) {
	switch p {
	case PeriodMonthly:
		return "month", 1
	case PeriodAnnual:
		return "year", 1
	default:
		return "month", 6
	}
}

// multiplier converts the per-semester base into the period's charge amount
func (p BillingPeriod) multiplier() decimal.Decimal {
	switch p {
	case PeriodMonthly:
		return one.Div(decimal.NewFromInt(6))
	case PeriodAnnual:
		return decimal.NewFromInt(2)
	default:
		return one
	}
}

// PriceQuote is the computed, ephemeral price for a (count, period) pair.
// All rounded fields use round-half-up at currency precision.
type PriceQuote struct {
	PortfolioCount     int             `json:"portfolioCount"`
	BillingPeriod      BillingPeriod   `json:"billingPeriod"`
	UnitBasePrice      decimal.Decimal `json:"unitBasePrice"`
	VolumeDiscountRate decimal.Decimal `json:"volumeDiscountRate"`
	AnnualDiscountRate decimal.Decimal `json:"annualDiscountRate"`
	TaxRate            decimal.Decimal `json:"taxRate"`
	GrossExclTax       decimal.Decimal `json:"grossExclTax"`
	AmountExclTax      decimal.Decimal `json:"amountExclTax"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	AmountInclTax      decimal.Decimal `json:"amountInclTax"`

	// AmountMinorUnits is AmountInclTax expressed in the currency minor
	// unit, as required by provider API calls.
	AmountMinorUnits int64 `json:"amountMinorUnits"`
}

// Quote computes the canonical price for the given portfolio count and
// billing period.
//
// Rounding is two-stage: discounts (volume, then annual) are applied to the
// unrounded gross, the excl.-tax subtotal is rounded once, tax is computed
// on that rounded subtotal and rounded again. Intermediate values are never
// rounded earlier; the staged policy keeps totals aligned with the amounts
// the remote price objects were created with.
func Quote(portfolioCount int, period BillingPeriod) (*PriceQuote, error) {
	if portfolioCount < MinPortfolios || portfolioCount > MaxPortfolios {
		return nil, apperrors.ValidationError{
			Field:   "portfolioCount",
			Message: fmt.Sprintf("must be between %d and %d (got %d)", MinPortfolios, MaxPortfolios, portfolioCount),
		}
	}
	if _, err := ParseBillingPeriod(string(period)); err != nil {
		return nil, err
	}

	gross := basePricePerSemester.
		Mul(decimal.NewFromInt(int64(portfolioCount))).
		Mul(period.multiplier())

	volumeRate := volumeDiscounts[portfolioCount]
	net := gross.Mul(one.Sub(volumeRate))

	annualRate := decimal.Zero
	if period == PeriodAnnual {
		annualRate = annualDiscountRate
		net = net.Mul(one.Sub(annualDiscountRate))
	}

	grossExcl := gross.Round(2)
	amountExcl := net.Round(2)
	tax := amountExcl.Mul(taxRate).Round(2)
	total := amountExcl.Add(tax).Round(2)

	return &PriceQuote{
		PortfolioCount:     portfolioCount,
		BillingPeriod:      period,
		UnitBasePrice:      basePricePerSemester,
		VolumeDiscountRate: volumeRate,
		AnnualDiscountRate: annualRate,
		TaxRate:            taxRate,
		GrossExclTax:       grossExcl,
		AmountExclTax:      amountExcl,
		TaxAmount:          tax,
		AmountInclTax:      total,
		AmountMinorUnits:   total.Mul(hundred).Round(0).IntPart(),
	}, nil
}

// LookupKey derives the stable provider lookup key for this quote. Repeated
// requests for the same (count, period) pair always map to the same key, so
// the remote price object is resolved idempotently.
func (q *PriceQuote) LookupKey(product string) string {
	return fmt.Sprintf("%s_%s_%d_portfolios_incl_tax", product, q.BillingPeriod, q.PortfolioCount)
}
