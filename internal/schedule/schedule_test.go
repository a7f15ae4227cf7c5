package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestBuildSimpleInterestSchedule(t *testing.T) {
	start := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	plan, err := Build(120000, 20000, 10, 10, start, 5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.PrincipalCents != 100000 {
		t.Fatalf("principal = %d, want 100000", plan.PrincipalCents)
	}
	if plan.InterestCents != 10000 {
		t.Fatalf("interest = %d, want 10000", plan.InterestCents)
	}
	if plan.TotalCents != 130000 {
		t.Fatalf("total = %d, want 130000", plan.TotalCents)
	}
	if plan.RemainingCents != 110000 {
		t.Fatalf("remaining = %d, want 110000", plan.RemainingCents)
	}
	if plan.MonthlyCents != 11000 {
		t.Fatalf("monthly = %d, want 11000", plan.MonthlyCents)
	}
	for i, amount := range plan.Amounts {
		if amount != 11000 {
			t.Fatalf("installment %d = %d, want 11000", i+1, amount)
		}
	}
	if got := plan.DueDates[0]; got.Month() != time.February || got.Day() != 5 {
		t.Fatalf("first due date = %v, want Feb 5", got)
	}
}

func TestBuildRemainderLandsOnLastInstallment(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	plan, err := Build(100000, 0, 0, 3, start, 10)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.Amounts[0] != 33333 || plan.Amounts[1] != 33333 {
		t.Fatalf("leading amounts = %v, want 33333 each", plan.Amounts[:2])
	}
	if plan.Amounts[2] != 33334 {
		t.Fatalf("last amount = %d, want 33334", plan.Amounts[2])
	}
	var sum int64
	for _, amount := range plan.Amounts {
		sum += amount
	}
	if sum != plan.RemainingCents {
		t.Fatalf("amounts sum %d != remaining %d", sum, plan.RemainingCents)
	}
}

func TestBuildClampsDueDayToShortMonths(t *testing.T) {
	start := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	plan, err := Build(60000, 0, 0, 3, start, 31)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := plan.DueDates[0]; got.Month() != time.February || got.Day() != 28 {
		t.Fatalf("february due date = %v, want Feb 28", got)
	}
	if got := plan.DueDates[1]; got.Month() != time.March || got.Day() != 31 {
		t.Fatalf("march due date = %v, want Mar 31", got)
	}
}

func TestBuildRejectsInvalidTerms(t *testing.T) {
	start := time.Now()
	cases := []struct {
		name  string
		total int64
		down  int64
		rate  float64
		month int
		day   int
	}{
		{"zero total", 0, 0, 10, 6, 5},
		{"zero months with balance owed", 10000, 0, 10, 0, 5},
		{"down exceeds total", 10000, 20000, 10, 6, 5},
		{"negative rate", 10000, 0, -1, 6, 5},
		{"due day out of range", 10000, 0, 10, 6, 32},
	}
	for _, tc := range cases {
		if _, err := Build(tc.total, tc.down, tc.rate, tc.month, start, tc.day); !errors.Is(err, ErrInvalidTerm) {
			t.Fatalf("%s: err = %v, want ErrInvalidTerm", tc.name, err)
		}
	}
}

func TestBuildAcceptsFullyPaidDownPlan(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	// Down payment covers the whole total: nothing owed, zero months is
	// fine, and the schedule is empty.
	plan, err := Build(10000, 10000, 10, 0, start, 5)
	if err != nil {
		t.Fatalf("build fully paid plan: %v", err)
	}
	if plan.RemainingCents != 0 || len(plan.Amounts) != 0 {
		t.Fatalf("remaining = %d amounts = %v, want empty schedule", plan.RemainingCents, plan.Amounts)
	}

	// With months requested anyway, the schedule still has one entry per
	// month, each owing nothing.
	plan, err = Build(10000, 10000, 0, 4, start, 5)
	if err != nil {
		t.Fatalf("build fully paid plan with months: %v", err)
	}
	if len(plan.Amounts) != 4 {
		t.Fatalf("got %d installments, want 4", len(plan.Amounts))
	}
	for i, amount := range plan.Amounts {
		if amount != 0 {
			t.Fatalf("installment %d = %d, want 0", i+1, amount)
		}
	}
}

func TestBuildRemainderSmallerThanMonths(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	plan, err := Build(2, 0, 0, 3, start, 5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.MonthlyCents != 0 {
		t.Fatalf("monthly = %d, want 0", plan.MonthlyCents)
	}
	if plan.Amounts[0] != 0 || plan.Amounts[1] != 0 || plan.Amounts[2] != 2 {
		t.Fatalf("amounts = %v, want [0 0 2]", plan.Amounts)
	}
}
