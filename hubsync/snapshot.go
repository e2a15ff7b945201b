package hubsync

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/storage"
)

// LoadSnapshot reads a snapshot from a local path or gs://bucket/object.
func LoadSnapshot(ctx context.Context, gcs *storage.Client, uri string) (*Snapshot, error) {
	src, err := SourceForURI(gcs, uri)
	if err != nil {
		return nil, err
	}
	rc, _, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", uri, err)
	}
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", uri, err)
	}
	return &snap, nil
}

// StagedDocuments resolves the byte source of every document in the snapshot.
func (s *Snapshot) StagedDocuments(gcs *storage.Client) ([]StagedDocument, error) {
	out := make([]StagedDocument, 0, len(s.Documents))
	for _, d := range s.Documents {
		src, err := SourceForURI(gcs, d.SourceURI)
		if err != nil {
			return nil, validationError(opAppendPayrollFile, s.Company.CompanyCode+"/"+d.EmployeeNumber, "%v", err)
		}
		out = append(out, StagedDocument{PayrollDocument: d, Source: src})
	}
	return out, nil
}
