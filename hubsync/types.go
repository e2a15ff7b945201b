package hubsync

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/hubsync_backend/models"
)

// SyncModules selects which parts of a snapshot a run pushes. Modules run in field order.
type SyncModules struct {
	Company      bool `json:"company"`
	OrgStructure bool `json:"orgStructure"`
	Employees    bool `json:"employees"`
	ChangeFeed   bool `json:"changeFeed"`
	Payroll      bool `json:"payroll"`
	Documents    bool `json:"documents"`
}

func DefaultModules() SyncModules {
	return SyncModules{
		Company:      true,
		OrgStructure: true,
		Employees:    true,
		ChangeFeed:   true,
		Payroll:      true,
		Documents:    true,
	}
}

func (m SyncModules) any() bool {
	return m.Company || m.OrgStructure || m.Employees || m.ChangeFeed || m.Payroll || m.Documents
}

func DecodeModules(raw []byte) SyncModules {
	if len(raw) == 0 {
		return DefaultModules()
	}
	var mod SyncModules
	if err := json.Unmarshal(raw, &mod); err != nil || !mod.any() {
		return DefaultModules()
	}
	return mod
}

func EncodeModules(mod SyncModules) []byte {
	b, _ := json.Marshal(mod)
	return b
}

const (
	ModuleCompany      = "company"
	ModuleOrgStructure = "org_structure"
	ModuleEmployees    = "employees"
	ModuleChangeFeed   = "change_feed"
	ModulePayroll      = "payroll"
	ModuleDocuments    = "documents"
	ModuleSnapshot     = "snapshot"
)

// SyncRequest asks for one company snapshot to be pushed. RequestID makes redelivered
// requests land on the same ledger run.
type SyncRequest struct {
	RequestID   string      `json:"request_id"`
	CompanyCode string      `json:"company_code"`
	SnapshotURI string      `json:"snapshot_uri"`
	Modules     SyncModules `json:"modules"`
	TriggeredBy string      `json:"triggered_by,omitempty"`
}

// Snapshot is the payroll engine's export of one company.
type Snapshot struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Company     models.Company           `json:"company"`
	Documents   []models.PayrollDocument `json:"documents,omitempty"`
	// ScheduleRuns appends that many upcoming scheduled runs to the company's payrolls.
	ScheduleRuns int `json:"schedule_runs,omitempty"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		ID         string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID          uint            `json:"id"`
	RequestID   string          `json:"requestId"`
	CompanyCode string          `json:"companyCode"`
	Status      string          `json:"status"`
	StartedAt   *string         `json:"startedAt"`
	FinishedAt  *string         `json:"finishedAt"`
	DurationMs  int64           `json:"durationMs"`
	ErrorCount  int             `json:"errorCount"`
	TriggeredBy string          `json:"triggeredBy"`
	Stats       json.RawMessage `json:"stats,omitempty"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID          uint                `json:"id"`
	Module      string              `json:"module"`
	ErrorKind   string              `json:"errorKind"`
	EntityKey   string              `json:"entityKey"`
	Message     string              `json:"message"`
	BrokenRules []models.BrokenRule `json:"brokenRules,omitempty"`
}
