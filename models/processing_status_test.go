package models

import (
	"testing"
	"time"

	types "github.com/Shyp/go-types"
)

func mustID(t *testing.T, s string) types.PrefixUUID {
	t.Helper()
	id, err := types.NewPrefixUUID(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestStatusFromQueued(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	qj := &QueuedJob{
		ID:        mustID(t, "job_6740b44e-13b9-475d-af06-979627e0e0d6"),
		Name:      TypeOCR,
		Status:    StatusInProgress,
		Progress:  40,
		CreatedAt: created,
	}
	ps := StatusFromQueued(qj)
	if ps.Status != StatusInProgress {
		t.Errorf("got status %q, expected %q", ps.Status, StatusInProgress)
	}
	if ps.Progress == nil || *ps.Progress != 40 {
		t.Errorf("got progress %v, expected 40", ps.Progress)
	}
	if ps.Result != nil || ps.Error != "" {
		t.Errorf("live jobs should not report a result or error")
	}
	if ps.FinishedAt.Valid {
		t.Errorf("live jobs should not report finishedAt")
	}
	if !ps.CreatedAt.Equal(created) {
		t.Errorf("got createdAt %v, expected %v", ps.CreatedAt, created)
	}
}

func TestStatusFromArchivedSucceeded(t *testing.T) {
	enqueued := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	finished := enqueued.Add(90 * time.Second)
	aj := &ArchivedJob{
		ID:         mustID(t, "job_6740b44e-13b9-475d-af06-979627e0e0d6"),
		Name:       TypePDFSplit,
		Status:     StatusSucceeded,
		Result:     types.NullString{Valid: true, String: `{"success":true,"message":"Split \"a.pdf\" into 2 pages","outputFileIds":["x","y"]}`},
		EnqueuedAt: enqueued,
		CreatedAt:  finished,
	}
	ps := StatusFromArchived(aj)
	if ps.Progress == nil || *ps.Progress != 100 {
		t.Errorf("succeeded jobs should report progress 100, got %v", ps.Progress)
	}
	if ps.Result == nil || !ps.Result.Success {
		t.Fatalf("expected a decoded result, got %v", ps.Result)
	}
	if len(ps.Result.OutputFileIDs) != 2 {
		t.Errorf("got %d output ids, expected 2", len(ps.Result.OutputFileIDs))
	}
	if !ps.CreatedAt.Equal(enqueued) {
		t.Errorf("createdAt should be the enqueue time, got %v", ps.CreatedAt)
	}
	if !ps.FinishedAt.Valid || !ps.FinishedAt.Time.Equal(finished) {
		t.Errorf("finishedAt should be the archive time, got %v", ps.FinishedAt)
	}
}

func TestStatusFromArchivedFailed(t *testing.T) {
	aj := &ArchivedJob{
		ID:     mustID(t, "job_6740b44e-13b9-475d-af06-979627e0e0d6"),
		Name:   TypeImageConvert,
		Status: StatusFailed,
		Error:  types.NullString{Valid: true, String: "cannot decode \"a.bin\""},
	}
	ps := StatusFromArchived(aj)
	if ps.Progress != nil {
		t.Errorf("failed jobs should not report progress, got %v", *ps.Progress)
	}
	if ps.Error != "cannot decode \"a.bin\"" {
		t.Errorf("got error %q", ps.Error)
	}
	if ps.Result != nil {
		t.Errorf("failed jobs should not carry a result")
	}
}
