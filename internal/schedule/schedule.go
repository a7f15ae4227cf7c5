package schedule

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidTerm = errors.New("invalid installment term")

// Plan is the computed shape of a credit schedule before it is persisted.
type Plan struct {
	PrincipalCents int64
	InterestCents  int64
	TotalCents     int64
	RemainingCents int64
	MonthlyCents   int64
	DueDates       []time.Time
	Amounts        []int64
}

// Build computes an amortization schedule in whole cents. The financed
// principal is the sale total minus the down payment; simple interest is
// applied once on the principal and rounded to the nearest cent. The
// remainder of the integer division lands on the last installment so the
// amounts always sum exactly to the remaining balance.
func Build(totalCents int64, downPaymentCents int64, interestRatePct float64, months int, start time.Time, dueDay int) (*Plan, error) {
	if totalCents <= 0 || downPaymentCents < 0 || interestRatePct < 0 {
		return nil, ErrInvalidTerm
	}
	if downPaymentCents > totalCents {
		return nil, ErrInvalidTerm
	}
	if dueDay < 1 || dueDay > 31 {
		return nil, ErrInvalidTerm
	}

	principal := totalCents - downPaymentCents
	interest := int64(math.Round(float64(principal) * interestRatePct / 100))
	remaining := principal + interest

	// A term without months is only a problem while money is still owed; a
	// fully paid-down plan legitimately has an empty schedule.
	if months <= 0 {
		if remaining > 0 {
			return nil, ErrInvalidTerm
		}
		months = 0
	}
	monthly := int64(0)
	if months > 0 {
		monthly = remaining / int64(months)
	}

	plan := &Plan{
		PrincipalCents: principal,
		InterestCents:  interest,
		TotalCents:     totalCents + interest,
		RemainingCents: remaining,
		MonthlyCents:   monthly,
		DueDates:       make([]time.Time, 0, months),
		Amounts:        make([]int64, 0, months),
	}

	allocated := int64(0)
	for i := 1; i <= months; i++ {
		amount := monthly
		if i == months {
			amount = remaining - allocated
		}
		allocated += amount
		plan.DueDates = append(plan.DueDates, dueDate(start, i, dueDay))
		plan.Amounts = append(plan.Amounts, amount)
	}

	return plan, nil
}

// dueDate lands on dueDay of the i-th month after start, clamped to the
// last day of months that are too short.
func dueDate(start time.Time, monthsAhead int, dueDay int) time.Time {
	year, month, _ := start.Date()
	target := time.Date(year, month+time.Month(monthsAhead), 1, 0, 0, 0, 0, start.Location())
	last := target.AddDate(0, 1, -1).Day()
	day := dueDay
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, start.Location())
}
