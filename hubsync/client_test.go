package hubsync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/models"
)

// hubServer is a minimal platform double: it issues tokens and serves one handler per path.
type hubServer struct {
	mu         sync.Mutex
	tokens     int
	validToken string
	routes     map[string]http.HandlerFunc
}

func newHubServer(t *testing.T) (*hubServer, *HTTPTransport) {
	t.Helper()
	hs := &hubServer{routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)

	c := NewHTTPTransport(config.HubConfig{
		BaseURL:         srv.URL + "/",
		APIKey:          "key",
		APISecret:       "secret",
		RateLimitPerMin: 600000,
		Timeout:         5 * time.Second,
	}, srv.Client())
	t.Cleanup(c.Close)
	return hs, c
}

func (h *hubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/auth/token" {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["api_key"] != "key" || in["api_secret"] != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		h.mu.Lock()
		h.tokens++
		h.validToken = "tok-" + string(rune('0'+h.tokens))
		tok := h.validToken
		h.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": tok, "expires_in": 3600})
		return
	}

	h.mu.Lock()
	valid := h.validToken
	h.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+valid {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	route, ok := h.routes[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	route(w, r)
}

func (h *hubServer) handle(method, path string, fn http.HandlerFunc) {
	h.routes[method+" "+path] = fn
}

func (h *hubServer) expire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.validToken = "revoked"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPTransport_TokenIsCached(t *testing.T) {
	hs, c := newHubServer(t)
	hs.handle(http.MethodGet, "/api/v1/companies/DTC1/employees/EMP042", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.EmployeeResult{Result: models.Result{IsSuccessful: true}, Employee: &models.Employee{EmployeeNumber: "EMP042"}})
	})

	for i := 0; i < 3; i++ {
		res, err := c.GetEmployee(context.Background(), "DTC1", "EMP042")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if res.Employee == nil || res.Employee.EmployeeNumber != "EMP042" {
			t.Fatalf("res=%+v", res)
		}
	}
	if hs.tokens != 1 {
		t.Fatalf("tokens issued=%d", hs.tokens)
	}
}

func TestHTTPTransport_RefreshesOnUnauthorized(t *testing.T) {
	hs, c := newHubServer(t)
	hs.handle(http.MethodPost, "/api/v1/pendingchanges/c1/acknowledge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.Result{IsSuccessful: true})
	})

	if _, err := c.AcknowledgePendingChange(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	hs.expire()
	res, err := c.AcknowledgePendingChange(context.Background(), "c1")
	if err != nil || !res.IsSuccessful {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if hs.tokens != 2 {
		t.Fatalf("tokens issued=%d", hs.tokens)
	}
}

func TestHTTPTransport_RejectionBodyOnErrorStatus(t *testing.T) {
	hs, c := newHubServer(t)
	hs.handle(http.MethodPut, "/api/v1/orggroups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, models.Result{
			Message:     "validation failed",
			BrokenRules: []models.BrokenRule{{BrokenRuleCode: "DUP_LEVEL", EntityUniqueKey: "DTC1/REG"}},
		})
	})

	res, err := c.AddOrUpdateOrgGroups(context.Background(), &models.Company{CompanyCode: "DTC1"})
	if err != nil {
		t.Fatalf("a decodable rejection is a result, got err %v", err)
	}
	if KindOf(CheckResult(opUpsertOrgStructure, "DTC1", res)) != KindRemoteRejection {
		t.Fatalf("res=%+v", res)
	}
}

func TestHTTPTransport_ServerErrorIsTransport(t *testing.T) {
	hs, c := newHubServer(t)
	hs.handle(http.MethodPut, "/api/v1/companies", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusBadGateway)
	})
	md := NewMasterDataSynchronizer(c, quietLogger(), false, "US")
	_, err := md.UpsertCompany(context.Background(), dtc1())
	if !IsKind(err, KindTransport) {
		t.Fatalf("err=%v", err)
	}
}

func TestHTTPTransport_EmptyAndMalformedBodies(t *testing.T) {
	hs, c := newHubServer(t)
	hs.handle(http.MethodGet, "/api/v1/pendingchanges", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	hs.handle(http.MethodPost, "/api/v1/payrolldata", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"is_successful": tru`))
	})

	_, err := NewChangeFeedConsumer(c, &payrollStub{}, quietLogger()).ProcessBatch(context.Background())
	if !IsKind(err, KindProtocolViolation) {
		t.Fatalf("empty body: err=%v", err)
	}

	_, err = NewPayrollRunSubmitter(c, quietLogger()).Submit(context.Background(), "DTC1", []models.PayrollRun{processedRun(1)})
	if !IsKind(err, KindProtocolViolation) {
		t.Fatalf("malformed body: err=%v", err)
	}
}

func TestHTTPTransport_AppendEncodesContents(t *testing.T) {
	hs, c := newHubServer(t)
	var got map[string]any
	hs.handle(http.MethodPost, "/api/v1/payrollfiles/req-7/append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, models.Result{IsSuccessful: true})
	})

	body := "%PDF-1.7 stub"
	res, err := c.AppendToPayrollFile(context.Background(), &models.PayrollFile{
		RequestID:      "req-7",
		CompanyCode:    "DTC1",
		EmployeeNumber: "EMP042",
		FileType:       models.PayrollFileTypeW2,
		ContentLength:  int64(len(body)),
		FileContents:   strings.NewReader(body),
	})
	if err != nil || !res.IsSuccessful {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	encoded, _ := got["file_contents"].(string)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || string(raw) != body {
		t.Fatalf("file_contents=%q", encoded)
	}
	if got["employee_number"] != "EMP042" || got["file_type"] != "w2" {
		t.Fatalf("payload=%v", got)
	}

	_, err = c.AppendToPayrollFile(context.Background(), &models.PayrollFile{
		RequestID:     "req-7",
		ContentLength: 99,
		FileContents:  strings.NewReader(body),
	})
	if err == nil {
		t.Fatal("short read must fail")
	}
}

func TestHTTPTransport_BadCredentials(t *testing.T) {
	_, c := newHubServer(t)
	c.tokens.apiSecret = "wrong"
	_, err := NewChangeFeedConsumer(c, &payrollStub{}, quietLogger()).ProcessBatch(context.Background())
	if !IsKind(err, KindTransport) {
		t.Fatalf("err=%v", err)
	}
}
