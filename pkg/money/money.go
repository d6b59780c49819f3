package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Split is the fee breakdown of a gross booking amount. All values are in
// cents and always satisfy PlatformFeeCents + TalentAmountCents == GrossCents.
type Split struct {
	GrossCents       int64
	PlatformFeeCents int64
	TalentAmountCents int64
}

// ComputeSplit applies the platform fee rate to a gross amount. The fee is
// rounded down to whole cents so rounding slack accrues to the talent, never
// to the platform.
func ComputeSplit(grossCents int64, feeRate decimal.Decimal) (Split, error) {
	if grossCents <= 0 {
		return Split{}, fmt.Errorf("gross amount must be positive, got %d", grossCents)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Split{}, fmt.Errorf("fee rate must be in [0,1), got %s", feeRate)
	}

	gross := decimal.NewFromInt(grossCents)
	fee := gross.Mul(feeRate).Floor()

	feeCents := fee.IntPart()
	return Split{
		GrossCents:        grossCents,
		PlatformFeeCents:  feeCents,
		TalentAmountCents: grossCents - feeCents,
	}, nil
}

// ParseFeeRate parses an operator-supplied fee rate string such as "0.10".
func ParseFeeRate(value string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing fee rate %q: %w", value, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("fee rate %s out of range [0,1)", rate)
	}
	return rate, nil
}
