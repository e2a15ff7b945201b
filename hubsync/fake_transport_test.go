package hubsync

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func okResult() *models.Result { return &models.Result{IsSuccessful: true} }

// fakeTransport records every call and answers with success unless a func field overrides it.
type fakeTransport struct {
	mu        sync.Mutex
	calls     map[string]int
	acked     []string
	companies []models.Company
	payroll   []*models.PayrollDataRequest
	appended  []appendedFile
	completed []int

	pendingFn  func() (*models.PendingChangesResult, error)
	employeeFn func(companyCode, employeeNumber string) (*models.EmployeeResult, error)
	newHireFn  func(companyCode, newHireID string) (*models.NewHireResult, error)
	taxFn      func(companyCode, employeeNumber string, taxID int) (*models.EmployeeTaxResult, error)
	depositsFn func(companyCode, employeeNumber string) (*models.DirectDepositsResult, error)
	ackFn      func(changeID string) (*models.Result, error)
	upsertFn   func(op string, company *models.Company) (*models.Result, error)
	payrollFn  func(req *models.PayrollDataRequest) (*models.Result, error)
	stageFn    func(companyCode string) (*models.Result, error)
	appendFn   func(n int, file *models.PayrollFile) (*models.Result, error)
	completeFn func(requestID string, count int) (*models.Result, error)
}

type appendedFile struct {
	models.PayrollFile
	Body string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: map[string]int{}}
}

func (f *fakeTransport) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTransport) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeTransport) GetPendingChanges(ctx context.Context) (*models.PendingChangesResult, error) {
	f.record(opGetPendingChanges)
	if f.pendingFn != nil {
		return f.pendingFn()
	}
	return &models.PendingChangesResult{Result: *okResult()}, nil
}

func (f *fakeTransport) GetEmployee(ctx context.Context, companyCode, employeeNumber string) (*models.EmployeeResult, error) {
	f.record(opGetEmployee)
	if f.employeeFn != nil {
		return f.employeeFn(companyCode, employeeNumber)
	}
	return &models.EmployeeResult{
		Result: *okResult(),
		Employee: &models.Employee{
			EmployeeNumber:  employeeNumber,
			FirstName:       "Pat",
			LastName:        "Lee",
			CellPhoneNumber: "(801) 234-5678",
			PrimaryAddress:  &models.Address{Address1: "1 Main St", City: "Provo", StateCode: "UT", ZipCode: "84601"},
		},
	}, nil
}

func (f *fakeTransport) GetNewHire(ctx context.Context, companyCode, newHireID string) (*models.NewHireResult, error) {
	f.record(opGetNewHire)
	if f.newHireFn != nil {
		return f.newHireFn(companyCode, newHireID)
	}
	return &models.NewHireResult{
		Result: *okResult(),
		NewHire: &models.NewHire{
			NewHireID:      newHireID,
			LegalFirstName: "Sam",
			LegalLastName:  "Ortiz",
			EmailAddress:   "sam@example.com",
			BirthDate:      "1990-04-02",
			SSN:            "555-55-9876",
		},
	}, nil
}

func (f *fakeTransport) GetEmployeeTax(ctx context.Context, companyCode, employeeNumber string, taxID int) (*models.EmployeeTaxResult, error) {
	f.record(opGetEmployeeTax)
	if f.taxFn != nil {
		return f.taxFn(companyCode, employeeNumber, taxID)
	}
	return &models.EmployeeTaxResult{Result: *okResult(), Tax: &models.EeTax{TaxID: taxID, TaxName: "Federal"}}, nil
}

func (f *fakeTransport) GetEmployeeDirectDeposits(ctx context.Context, companyCode, employeeNumber string) (*models.DirectDepositsResult, error) {
	f.record(opGetDirectDeposits)
	if f.depositsFn != nil {
		return f.depositsFn(companyCode, employeeNumber)
	}
	return &models.DirectDepositsResult{
		Result: *okResult(),
		Rules:  []models.DirectDepositRule{{BankName: "First Bank", BankRoutingNumber: "124000054", BankAccountNumber: "000123"}},
	}, nil
}

func (f *fakeTransport) AcknowledgePendingChange(ctx context.Context, changeID string) (*models.Result, error) {
	f.record(opAcknowledge)
	f.mu.Lock()
	f.acked = append(f.acked, changeID)
	f.mu.Unlock()
	if f.ackFn != nil {
		return f.ackFn(changeID)
	}
	return okResult(), nil
}

func (f *fakeTransport) upsert(op string, company *models.Company) (*models.Result, error) {
	f.record(op)
	f.mu.Lock()
	f.companies = append(f.companies, *company)
	f.mu.Unlock()
	if f.upsertFn != nil {
		return f.upsertFn(op, company)
	}
	return okResult(), nil
}

func (f *fakeTransport) AddOrUpdateCompany(ctx context.Context, company *models.Company) (*models.Result, error) {
	return f.upsert(opUpsertCompany, company)
}

func (f *fakeTransport) AddOrUpdateOrgGroups(ctx context.Context, company *models.Company) (*models.Result, error) {
	return f.upsert(opUpsertOrgStructure, company)
}

func (f *fakeTransport) AddOrUpdateEmployees(ctx context.Context, company *models.Company) (*models.Result, error) {
	return f.upsert(opUpsertEmployees, company)
}

func (f *fakeTransport) ProcessPayrollData(ctx context.Context, req *models.PayrollDataRequest) (*models.Result, error) {
	f.record(opSubmitPayrollData)
	f.mu.Lock()
	f.payroll = append(f.payroll, req)
	f.mu.Unlock()
	if f.payrollFn != nil {
		return f.payrollFn(req)
	}
	return okResult(), nil
}

func (f *fakeTransport) StagePayrollFile(ctx context.Context, companyCode string) (*models.Result, error) {
	f.record(opStagePayrollFile)
	if f.stageFn != nil {
		return f.stageFn(companyCode)
	}
	return &models.Result{IsSuccessful: true, RequestID: "req-1"}, nil
}

func (f *fakeTransport) AppendToPayrollFile(ctx context.Context, file *models.PayrollFile) (*models.Result, error) {
	n := f.record(opAppendPayrollFile)
	body, err := io.ReadAll(file.FileContents)
	if err != nil {
		return nil, err
	}
	if f.appendFn != nil {
		res, err := f.appendFn(n, file)
		if err != nil || res == nil || !res.IsSuccessful {
			return res, err
		}
	}
	f.mu.Lock()
	f.appended = append(f.appended, appendedFile{PayrollFile: *file, Body: string(body)})
	f.mu.Unlock()
	return okResult(), nil
}

func (f *fakeTransport) CompletePayrollFile(ctx context.Context, requestID string, count int) (*models.Result, error) {
	f.record(opCompletePayrollFile)
	f.mu.Lock()
	f.completed = append(f.completed, count)
	f.mu.Unlock()
	if f.completeFn != nil {
		return f.completeFn(requestID, count)
	}
	return okResult(), nil
}

// sourceState counts opens and closes across the byte sources of one test.
type sourceState struct {
	mu      sync.Mutex
	opens   int
	closes  int
	open    int
	maxOpen int
}

type trackedSource struct {
	data    string
	openErr error
	state   *sourceState
}

func (s trackedSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if s.openErr != nil {
		return nil, 0, s.openErr
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.opens++
	s.state.open++
	if s.state.open > s.state.maxOpen {
		s.state.maxOpen = s.state.open
	}
	return &trackedReader{Reader: strings.NewReader(s.data), state: s.state}, int64(len(s.data)), nil
}

type trackedReader struct {
	*strings.Reader
	state *sourceState
}

func (r *trackedReader) Close() error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.closes++
	r.state.open--
	return nil
}

// payrollStub is a PayrollSystem with func fields, in the style of the store stubs.
type payrollStub struct {
	mu    sync.Mutex
	calls []string

	applyNewHireFn func(companyCode string, nh models.NewHire) (string, error)
	updateErr      error
	addressErr     error
	deposits       [][]models.DirectDepositRule
	phones         []string
}

func (p *payrollStub) note(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *payrollStub) ApplyNewHire(ctx context.Context, companyCode string, nh models.NewHire) (string, error) {
	p.note("new_hire:" + nh.NewHireID)
	if p.applyNewHireFn != nil {
		return p.applyNewHireFn(companyCode, nh)
	}
	return "", nil
}

func (p *payrollStub) UpdateAddress(ctx context.Context, companyCode, employeeNumber string, address models.Address) error {
	p.note("address:" + employeeNumber)
	if p.addressErr != nil {
		return p.addressErr
	}
	return p.updateErr
}

func (p *payrollStub) UpdatePhone(ctx context.Context, companyCode, employeeNumber, phone string) error {
	p.note("phone:" + employeeNumber)
	p.mu.Lock()
	p.phones = append(p.phones, phone)
	p.mu.Unlock()
	return p.updateErr
}

func (p *payrollStub) UpdateTax(ctx context.Context, companyCode, employeeNumber string, tax models.EeTax) error {
	p.note("tax:" + employeeNumber)
	return p.updateErr
}

func (p *payrollStub) UpdateDirectDeposits(ctx context.Context, companyCode, employeeNumber string, rules []models.DirectDepositRule) error {
	p.note("deposits:" + employeeNumber)
	p.mu.Lock()
	p.deposits = append(p.deposits, rules)
	p.mu.Unlock()
	return p.updateErr
}
