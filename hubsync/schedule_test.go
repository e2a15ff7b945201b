package hubsync

import (
	"testing"
	"time"

	"github.com/mmdatafocus/hubsync_backend/models"
)

func TestScheduledRuns(t *testing.T) {
	day := func(s string) time.Time {
		v, err := time.Parse(models.DateLayout, s)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	// 2024-05-20 is a Monday; the next Saturday is 2024-05-25.
	runs := ScheduledRuns(day("2024-05-20").Add(15*time.Hour), 3)
	if len(runs) != 3 {
		t.Fatalf("len=%d", len(runs))
	}
	first := runs[0]
	if !first.PeriodEndDate.Equal(day("2024-05-25")) ||
		!first.PeriodStartDate.Equal(day("2024-05-12")) ||
		!first.InputDate.Equal(day("2024-05-28")) ||
		!first.CheckDate.Equal(day("2024-05-31")) {
		t.Fatalf("first=%+v", first)
	}
	if first.Status != models.PayrollStatusScheduled || first.ProcessNumber != nil {
		t.Fatalf("first=%+v", first)
	}
	for i := 1; i < len(runs); i++ {
		if got := runs[i].CheckDate.Sub(runs[i-1].CheckDate); got != 14*24*time.Hour {
			t.Fatalf("run %d spacing=%s", i, got)
		}
	}
	if err := ValidatePayrollRuns("DTC1", runs); err != nil {
		t.Fatalf("scheduled runs must validate: %v", err)
	}
}

func TestScheduledRuns_OnSaturday(t *testing.T) {
	sat := time.Date(2024, 5, 25, 9, 0, 0, 0, time.UTC)
	runs := ScheduledRuns(sat, 1)
	if runs[0].PeriodEndDate.Format(models.DateLayout) != "2024-05-25" {
		t.Fatalf("end=%s", runs[0].PeriodEndDate)
	}
}

func TestScheduledRuns_Zero(t *testing.T) {
	if ScheduledRuns(time.Now(), 0) != nil {
		t.Fatal("expected nil")
	}
}
