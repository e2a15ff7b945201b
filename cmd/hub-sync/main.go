// hub-sync pushes one company snapshot to the HR platform and exits.
//
// Usage:
//
//	HUB_API_KEY=... HUB_API_SECRET=... go run ./cmd/hub-sync -company DTC1 -snapshot ./dtc1.json
//	go run ./cmd/hub-sync -company DTC1 -snapshot gs://bucket/dtc1.json -modules company,employees -ledger
//
// Exit status is 0 when every module succeeded, 1 on a partial or failed run and 2 on
// a usage or configuration error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/hubsync"
	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

func main() {
	var (
		company   = flag.String("company", "", "company code (required)")
		snapshot  = flag.String("snapshot", "", "snapshot path or gs://bucket/object")
		modules   = flag.String("modules", "", "comma separated: company,org,employees,changes,payroll,documents (default all)")
		requestID = flag.String("request-id", "", "request id; reuse it to make a rerun a no-op in the ledger")
		ledger    = flag.Bool("ledger", false, "record the run in the ledger database (DB_* env)")
		essTopic  = flag.String("ess-topic", "", "Pub/Sub topic receiving self-service edits (default HUB_ESS_TOPIC)")
	)
	flag.Parse()

	if strings.TrimSpace(*company) == "" {
		fmt.Fprintln(os.Stderr, "-company is required")
		flag.Usage()
		os.Exit(2)
	}
	mods, err := parseModules(*modules)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	hubCfg, err := config.LoadHubConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := config.GetLogger()

	transport := hubsync.NewHTTPTransport(hubCfg, nil)
	defer transport.Close()
	defer config.ClosePubSub()

	var recorder hubsync.Recorder = hubsync.NopRecorder{}
	if *ledger {
		config.ConnectDatabaseWithRetry()
		db := config.GetDB()
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "ledger migration failed: %v\n", err)
			os.Exit(2)
		}
		recorder = hubsync.NewGormRecorder(db)
	}

	gcs, err := utils.GetGCSClient(ctx)
	if err != nil {
		if utils.IsGCSURI(*snapshot) {
			fmt.Fprintf(os.Stderr, "gcs client: %v\n", err)
			os.Exit(2)
		}
		gcs = nil
	} else {
		defer gcs.Close()
	}

	worker := hubsync.NewWorker(transport, hubsync.NewPubSubPayrollSink(*essTopic), recorder, gcs, logger, hubsync.WorkerConfigFromEnv())
	summary, err := worker.Run(ctx, hubsync.SyncRequest{
		RequestID:   *requestID,
		CompanyCode: strings.TrimSpace(*company),
		SnapshotURI: *snapshot,
		Modules:     mods,
		TriggeredBy: models.SyncTriggeredManual,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}

	out := map[string]any{
		"run_id":  summary.RunID,
		"status":  summary.Status,
		"skipped": summary.Skipped,
		"stats":   summary.Stats,
	}
	if len(summary.Errors) > 0 {
		errs := make([]map[string]string, 0, len(summary.Errors))
		for _, e := range summary.Errors {
			errs = append(errs, map[string]string{"kind": string(hubsync.KindOf(e)), "error": e.Error()})
		}
		out["errors"] = errs
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)

	if !summary.Skipped && summary.Status != models.SyncRunStatusSuccess {
		os.Exit(1)
	}
}

func parseModules(csv string) (hubsync.SyncModules, error) {
	if strings.TrimSpace(csv) == "" {
		return hubsync.DefaultModules(), nil
	}
	var m hubsync.SyncModules
	for _, name := range strings.Split(csv, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "company":
			m.Company = true
		case "org", "org_structure":
			m.OrgStructure = true
		case "employees":
			m.Employees = true
		case "changes", "change_feed":
			m.ChangeFeed = true
		case "payroll":
			m.Payroll = true
		case "documents":
			m.Documents = true
		default:
			return m, fmt.Errorf("unknown module %q", name)
		}
	}
	return m, nil
}
