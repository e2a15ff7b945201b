package hubsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/models"
)

// HTTPTransport talks JSON to the platform's REST surface.
type HTTPTransport struct {
	baseURL string
	http    *http.Client
	tokens  *TokenSource
	limiter *time.Ticker
}

func NewHTTPTransport(cfg config.HubConfig, httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	rate := cfg.RateLimitPerMin
	if rate <= 0 {
		rate = 60
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &HTTPTransport{
		baseURL: baseURL,
		http:    httpClient,
		tokens:  NewTokenSource(baseURL, cfg.APIKey, cfg.APISecret, httpClient),
		limiter: time.NewTicker(time.Minute / time.Duration(rate)),
	}
}

// Close stops the rate limiter.
func (c *HTTPTransport) Close() {
	c.limiter.Stop()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenSource caches the bearer token obtained from the API key and secret.
type TokenSource struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	now       func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(baseURL, apiKey, apiSecret string, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
		now:       time.Now,
	}
}

func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && !s.expiresAt.IsZero() && s.now().Before(s.expiresAt.Add(-30*time.Second)) {
		return s.token, nil
	}

	payload, _ := json.Marshal(map[string]string{"api_key": s.apiKey, "api_secret": s.apiSecret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/auth/token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("hub token http status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if strings.TrimSpace(tr.AccessToken) == "" {
		return "", errors.New("hub token response has empty access_token")
	}
	if tr.ExpiresIn <= 0 {
		return "", errors.New("hub token response has invalid expires_in")
	}
	s.token = tr.AccessToken
	s.expiresAt = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return s.token, nil
}

func (c *HTTPTransport) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.limiter.C:
		return nil
	}
}

// roundTrip sends one authenticated request. A 401 drops the cached token and the
// request is sent once more with a fresh one.
func (c *HTTPTransport) roundTrip(ctx context.Context, method, path string, in any) ([]byte, int, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, 0, err
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, 0, err
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, 0, err
		}
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, 0, err
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.tokens.Invalidate()
			continue
		}
		if readErr != nil {
			return nil, resp.StatusCode, readErr
		}
		return respBody, resp.StatusCode, nil
	}
}

// decodeResult maps a response onto a result shape. An empty 2xx body yields a nil
// result; a non-2xx body that still carries a rejection is returned as that result.
func decodeResult[T any](op string, body []byte, status int) (*T, error) {
	ok := status >= 200 && status < 300
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		if ok {
			return nil, nil
		}
		return nil, fmt.Errorf("hub api error %d", status)
	}

	if !ok {
		var rejection models.Result
		if err := json.Unmarshal(trimmed, &rejection); err != nil || rejection.IsSuccessful || (rejection.Message == "" && len(rejection.BrokenRules) == 0) {
			return nil, fmt.Errorf("hub api error %d: %s", status, string(trimmed))
		}
	}

	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		if ok {
			return nil, &SyncError{Kind: KindProtocolViolation, Op: op, Message: "malformed result body", Err: err}
		}
		return nil, fmt.Errorf("hub api error %d: %s", status, string(trimmed))
	}
	return &out, nil
}

func doCall[T any](ctx context.Context, c *HTTPTransport, op, method, path string, in any) (*T, error) {
	body, status, err := c.roundTrip(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	return decodeResult[T](op, body, status)
}

func companyPath(companyCode string) string {
	return "/api/v1/companies/" + url.PathEscape(companyCode)
}

func employeePath(companyCode, employeeNumber string) string {
	return companyPath(companyCode) + "/employees/" + url.PathEscape(employeeNumber)
}

func (c *HTTPTransport) GetPendingChanges(ctx context.Context) (*models.PendingChangesResult, error) {
	return doCall[models.PendingChangesResult](ctx, c, opGetPendingChanges, http.MethodGet, "/api/v1/pendingchanges", nil)
}

func (c *HTTPTransport) GetEmployee(ctx context.Context, companyCode, employeeNumber string) (*models.EmployeeResult, error) {
	return doCall[models.EmployeeResult](ctx, c, opGetEmployee, http.MethodGet, employeePath(companyCode, employeeNumber), nil)
}

func (c *HTTPTransport) GetNewHire(ctx context.Context, companyCode, newHireID string) (*models.NewHireResult, error) {
	path := companyPath(companyCode) + "/newhires/" + url.PathEscape(newHireID)
	return doCall[models.NewHireResult](ctx, c, opGetNewHire, http.MethodGet, path, nil)
}

func (c *HTTPTransport) GetEmployeeTax(ctx context.Context, companyCode, employeeNumber string, taxID int) (*models.EmployeeTaxResult, error) {
	path := employeePath(companyCode, employeeNumber) + "/taxes/" + strconv.Itoa(taxID)
	return doCall[models.EmployeeTaxResult](ctx, c, opGetEmployeeTax, http.MethodGet, path, nil)
}

func (c *HTTPTransport) GetEmployeeDirectDeposits(ctx context.Context, companyCode, employeeNumber string) (*models.DirectDepositsResult, error) {
	path := employeePath(companyCode, employeeNumber) + "/directdeposits"
	return doCall[models.DirectDepositsResult](ctx, c, opGetDirectDeposits, http.MethodGet, path, nil)
}

func (c *HTTPTransport) AcknowledgePendingChange(ctx context.Context, changeID string) (*models.Result, error) {
	path := "/api/v1/pendingchanges/" + url.PathEscape(changeID) + "/acknowledge"
	return doCall[models.Result](ctx, c, opAcknowledge, http.MethodPost, path, nil)
}

func (c *HTTPTransport) AddOrUpdateCompany(ctx context.Context, company *models.Company) (*models.Result, error) {
	return doCall[models.Result](ctx, c, opUpsertCompany, http.MethodPut, "/api/v1/companies", company)
}

func (c *HTTPTransport) AddOrUpdateOrgGroups(ctx context.Context, company *models.Company) (*models.Result, error) {
	return doCall[models.Result](ctx, c, opUpsertOrgStructure, http.MethodPut, "/api/v1/orggroups", company)
}

func (c *HTTPTransport) AddOrUpdateEmployees(ctx context.Context, company *models.Company) (*models.Result, error) {
	return doCall[models.Result](ctx, c, opUpsertEmployees, http.MethodPut, "/api/v1/employees", company)
}

func (c *HTTPTransport) ProcessPayrollData(ctx context.Context, req *models.PayrollDataRequest) (*models.Result, error) {
	return doCall[models.Result](ctx, c, opSubmitPayrollData, http.MethodPost, "/api/v1/payrolldata", req)
}

func (c *HTTPTransport) StagePayrollFile(ctx context.Context, companyCode string) (*models.Result, error) {
	in := map[string]string{"company_code": companyCode}
	return doCall[models.Result](ctx, c, opStagePayrollFile, http.MethodPost, "/api/v1/payrollfiles/stage", in)
}

type appendPayrollFileRequest struct {
	*models.PayrollFile
	FileContents []byte `json:"file_contents"`
}

// AppendToPayrollFile reads the whole document and sends it base64-encoded in the JSON body.
func (c *HTTPTransport) AppendToPayrollFile(ctx context.Context, file *models.PayrollFile) (*models.Result, error) {
	if file == nil || file.FileContents == nil {
		return nil, errors.New("payroll file has no contents")
	}
	contents, err := io.ReadAll(file.FileContents)
	if err != nil {
		return nil, err
	}
	if file.ContentLength > 0 && int64(len(contents)) != file.ContentLength {
		return nil, fmt.Errorf("payroll file read %d bytes, expected %d", len(contents), file.ContentLength)
	}
	path := "/api/v1/payrollfiles/" + url.PathEscape(file.RequestID) + "/append"
	return doCall[models.Result](ctx, c, opAppendPayrollFile, http.MethodPost, path, appendPayrollFileRequest{PayrollFile: file, FileContents: contents})
}

func (c *HTTPTransport) CompletePayrollFile(ctx context.Context, requestID string, documentCount int) (*models.Result, error) {
	path := "/api/v1/payrollfiles/" + url.PathEscape(requestID) + "/complete"
	in := map[string]int{"document_count": documentCount}
	return doCall[models.Result](ctx, c, opCompletePayrollFile, http.MethodPost, path, in)
}
