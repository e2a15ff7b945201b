package hubsync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/hubsync_backend/models"
)

func processedRun(processNumber int) models.PayrollRun {
	checkDate := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	cash := decimal.RequireFromString("3100.00")
	ach := decimal.RequireFromString("3100.00")
	return models.PayrollRun{
		PeriodStartDate:       checkDate.AddDate(0, 0, -19),
		PeriodEndDate:         checkDate.AddDate(0, 0, -6),
		InputDate:             checkDate.AddDate(0, 0, -3),
		CheckDate:             checkDate,
		ProcessNumber:         &processNumber,
		Status:                models.PayrollStatusProcessed,
		CashRequirementAmount: &cash,
		AchDebitAmount:        &ach,
		Checks: []models.EmployeeCheck{
			{
				EmployeeNumber: "EMP042",
				NetPayAmount:   decimal.RequireFromString("1000.00"),
				Distributions: []models.NetPayDistribution{
					{DistributionName: "Checking", BankAccountNumber: "123", Amount: decimal.RequireFromString("333.33")},
					{DistributionName: "Savings", BankAccountNumber: "000987654", Amount: decimal.RequireFromString("666.67")},
				},
			},
			{EmployeeNumber: "EMP043", NetPayAmount: decimal.RequireFromString("2100.00")},
		},
	}
}

func TestPayrollSubmit_Valid(t *testing.T) {
	ft := newFakeTransport()
	s := NewPayrollRunSubmitter(ft, quietLogger())

	runs := []models.PayrollRun{processedRun(412)}
	runs = append(runs, ScheduledRuns(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), 2)...)

	if _, err := s.Submit(context.Background(), "DTC1", runs); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ft.count(opSubmitPayrollData) != 1 {
		t.Fatalf("calls=%v", ft.calls)
	}
	sent := ft.payroll[0]
	if len(sent.Companies) != 1 || sent.Companies[0].CompanyCode != "DTC1" || len(sent.Companies[0].Payrolls) != 3 {
		t.Fatalf("payload=%+v", sent)
	}
}

func TestPayrollSubmit_TwiceAcceptedBothTimes(t *testing.T) {
	ft := newFakeTransport()
	s := NewPayrollRunSubmitter(ft, quietLogger())
	runs := []models.PayrollRun{processedRun(412)}
	for i := 0; i < 2; i++ {
		if _, err := s.Submit(context.Background(), "DTC1", runs); err != nil {
			t.Fatalf("submit #%d: %v", i, err)
		}
	}
	if ft.count(opSubmitPayrollData) != 2 {
		t.Fatalf("calls=%v", ft.calls)
	}
	if ft.payroll[0].Companies[0].Payrolls[0].Key() != ft.payroll[1].Companies[0].Payrolls[0].Key() {
		t.Fatal("identity keys must be stable across submissions")
	}
}

func TestPayrollSubmit_Validation(t *testing.T) {
	cases := []struct {
		name string
		mut  func(r *models.PayrollRun)
	}{
		{name: "processed without process number", mut: func(r *models.PayrollRun) { r.ProcessNumber = nil }},
		{name: "processed without cash requirement", mut: func(r *models.PayrollRun) { r.CashRequirementAmount = nil }},
		{name: "processed without ach debit", mut: func(r *models.PayrollRun) { r.AchDebitAmount = nil }},
		{name: "scheduled with process number", mut: func(r *models.PayrollRun) { r.Status = models.PayrollStatusScheduled }},
		{name: "unknown status", mut: func(r *models.PayrollRun) { r.Status = "draft" }},
		{name: "distribution sum off by a cent", mut: func(r *models.PayrollRun) {
			r.Checks[0].Distributions[1].Amount = decimal.RequireFromString("666.66")
		}},
		{name: "distribution sum rounds but is not exact", mut: func(r *models.PayrollRun) {
			r.Checks[0].Distributions[1].Amount = decimal.RequireFromString("666.671")
		}},
		{name: "duplicate employee check", mut: func(r *models.PayrollRun) {
			r.Checks[1].EmployeeNumber = "EMP042"
		}},
		{name: "missing check date", mut: func(r *models.PayrollRun) { r.CheckDate = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := newFakeTransport()
			s := NewPayrollRunSubmitter(ft, quietLogger())
			run := processedRun(412)
			tc.mut(&run)

			_, err := s.Submit(context.Background(), "DTC1", []models.PayrollRun{run})
			if !IsKind(err, KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ft.count(opSubmitPayrollData) != 0 {
				t.Fatal("no submit call expected")
			}
		})
	}
}

func TestPayrollSubmit_DuplicateRunInRequest(t *testing.T) {
	s := NewPayrollRunSubmitter(newFakeTransport(), quietLogger())
	_, err := s.Submit(context.Background(), "DTC1", []models.PayrollRun{processedRun(412), processedRun(412)})
	if !IsKind(err, KindValidation) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Submit(context.Background(), "DTC1", []models.PayrollRun{processedRun(412), processedRun(413)}); err != nil {
		t.Fatalf("distinct process numbers on one check date: %v", err)
	}
}

func TestPayrollSubmit_EmptyDistributionsAreAPrintedCheck(t *testing.T) {
	run := processedRun(1)
	run.Checks[0].Distributions = nil
	if err := ValidatePayrollRuns("DTC1", []models.PayrollRun{run}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestPayrollSubmit_RemoteRejection(t *testing.T) {
	ft := newFakeTransport()
	ft.payrollFn = func(req *models.PayrollDataRequest) (*models.Result, error) {
		return &models.Result{Message: "ach exceeds cash requirement", BrokenRules: []models.BrokenRule{{BrokenRuleCode: "ACH"}}}, nil
	}
	s := NewPayrollRunSubmitter(ft, quietLogger())
	if _, err := s.Submit(context.Background(), "DTC1", []models.PayrollRun{processedRun(412)}); !IsKind(err, KindRemoteRejection) {
		t.Fatalf("err=%v", err)
	}
}

func TestPayrollRunKey(t *testing.T) {
	if got := processedRun(412).Key(); got != "2024-05-17/412" {
		t.Fatalf("key=%q", got)
	}
	if got := ScheduledRuns(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), 1)[0].Key(); got != "2024-05-31/scheduled" {
		t.Fatalf("key=%q", got)
	}
}
