package hubsync

import (
	"time"

	"github.com/mmdatafocus/hubsync_backend/models"
)

const payPeriodDays = 14

// ScheduledRuns builds the next count biweekly scheduled runs. The first period ends on the
// first Saturday on or after asOf; input is three days after period end and the check date six.
func ScheduledRuns(asOf time.Time, count int) []models.PayrollRun {
	if count <= 0 {
		return nil
	}
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	offset := (int(time.Saturday) - int(day.Weekday()) + 7) % 7
	end := day.AddDate(0, 0, offset)

	runs := make([]models.PayrollRun, 0, count)
	for i := 0; i < count; i++ {
		runs = append(runs, models.PayrollRun{
			PeriodStartDate: end.AddDate(0, 0, -(payPeriodDays - 1)),
			PeriodEndDate:   end,
			InputDate:       end.AddDate(0, 0, 3),
			CheckDate:       end.AddDate(0, 0, 6),
			Status:          models.PayrollStatusScheduled,
		})
		end = end.AddDate(0, 0, payPeriodDays)
	}
	return runs
}
