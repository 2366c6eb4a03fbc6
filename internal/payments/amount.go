package payments

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// FeeBasisPoints is the processing fee added to every charge (3.5%).
	FeeBasisPoints = 350

	MinChargeCents int64 = 10 * 100
	MaxChargeCents int64 = 500_000 * 100
)

var (
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrAmountExceedsBalance     = errors.New("amount exceeds outstanding balance")
	ErrAmountComputedFromMonths = errors.New("amount is computed from months")
	ErrNothingOutstanding       = errors.New("no outstanding rent balance")
	ErrInvalidMonths            = errors.New("months must be between 0 and 12")
	ErrBelowMinimum             = fmt.Errorf("amount must be at least KES %d", MinChargeCents/100)
	ErrAboveMaximum             = fmt.Errorf("amount exceeds transaction limit (KES %d)", MaxChargeCents/100)
	ErrUnknownPlan              = errors.New("unknown subscription plan")
)

const MaxPrepaidMonths = 12

// ProcessingFee returns the fee on amountCents, rounded half-up to the cent.
func ProcessingFee(amountCents int64) int64 {
	return (amountCents*FeeBasisPoints + 5_000) / 10_000
}

// Charge is what a payer is billed: the base amount credited to their
// balance plus the processing fee.
type Charge struct {
	AmountCents int64 `json:"amount_cents"`
	FeeCents    int64 `json:"fee_cents"`
	TotalCents  int64 `json:"total_cents"`
}

// NewCharge adds the processing fee and checks the total against the
// gateway's transaction limits.
func NewCharge(amountCents int64) (Charge, error) {
	if amountCents <= 0 {
		return Charge{}, ErrInvalidAmount
	}
	fee := ProcessingFee(amountCents)
	c := Charge{AmountCents: amountCents, FeeCents: fee, TotalCents: amountCents + fee}
	switch {
	case c.TotalCents < MinChargeCents:
		return Charge{}, ErrBelowMinimum
	case c.TotalCents > MaxChargeCents:
		return Charge{}, ErrAboveMaximum
	}
	return c, nil
}

type RentAmountInput struct {
	AmountCents      int64
	Months           int
	MonthlyRentCents int64
	OutstandingCents int64
}

// ResolveRentAmount applies the rent form rules. With months set the amount
// is months x monthly rent and a different client amount is refused. Without
// months the amount is a partial payment bounded by the outstanding balance.
func ResolveRentAmount(in RentAmountInput) (int64, error) {
	if in.Months < 0 || in.Months > MaxPrepaidMonths {
		return 0, ErrInvalidMonths
	}

	if in.Months > 0 {
		computed := int64(in.Months) * in.MonthlyRentCents
		if computed <= 0 {
			return 0, ErrInvalidAmount
		}
		if in.AmountCents != 0 && in.AmountCents != computed {
			return 0, ErrAmountComputedFromMonths
		}
		return computed, nil
	}

	if in.AmountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	if in.OutstandingCents <= 0 {
		return 0, ErrNothingOutstanding
	}
	if in.AmountCents > in.OutstandingCents {
		return 0, ErrAmountExceedsBalance
	}
	return in.AmountCents, nil
}

// FormatCents renders cents as a KES amount with thousands separators, e.g.
// 103500 -> "1,035.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	for i := len(whole) - 3; i > 0; i -= 3 {
		whole = whole[:i] + "," + whole[i:]
	}
	return fmt.Sprintf("%s%s.%02d", sign, whole, cents%100)
}
