package models

import "testing"

func TestJobTypeValid(t *testing.T) {
	for _, typ := range AllJobTypes {
		if !typ.Valid() {
			t.Errorf("expected %s to be a valid job type", typ)
		}
	}
	for _, typ := range []JobType{"", "pdf", "echo", "PDF-SPLIT"} {
		if typ.Valid() {
			t.Errorf("expected %q to be invalid", typ)
		}
	}
}

func TestDefaultPriorityOrdering(t *testing.T) {
	if TypePDFThumbnail.DefaultPriority() >= TypePDFSplit.DefaultPriority() {
		t.Errorf("thumbnails should run ahead of splits")
	}
	if TypePDFSplit.DefaultPriority() != TypeImageConvert.DefaultPriority() {
		t.Errorf("split and convert should share a priority")
	}
	if TypeOCR.DefaultPriority() <= TypeImageConvert.DefaultPriority() {
		t.Errorf("ocr should run last")
	}
}

func TestJobStatusScan(t *testing.T) {
	var status JobStatus
	if err := status.Scan([]byte("in-progress")); err != nil {
		t.Fatal(err)
	}
	if status != StatusInProgress {
		t.Errorf("got %q, expected %q", status, StatusInProgress)
	}
	if err := status.Scan(7); err == nil {
		t.Error("expected an error scanning an int")
	}
}
