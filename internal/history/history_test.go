package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	hist, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })
	return hist
}

func TestHistory_Insert(t *testing.T) {
	hist := openTestHistory(t)

	duration := 1.5
	commitHash := "abc123def456"
	record := &Record{
		Project:         "mysite",
		Image:           "ghcr.io/me/mysite:latest",
		Transport:       "api",
		Ref:             "refs/heads/main",
		Status:          StatusSuccess,
		DurationSeconds: &duration,
		CommitHash:      &commitHash,
	}

	id, err := hist.Insert(context.Background(), record)
	if err != nil {
		t.Fatalf("Failed to insert record: %v", err)
	}
	if id == 0 {
		t.Error("Expected non-zero record ID")
	}
}

func TestHistory_Latest(t *testing.T) {
	hist := openTestHistory(t)
	ctx := context.Background()

	_, err := hist.Insert(ctx, &Record{
		Project:   "mysite",
		Transport: "api",
		Status:    StatusSuccess,
	})
	if err != nil {
		t.Fatalf("Failed to insert first record: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	errMsg := "HTTP 404: Application not found"
	_, err = hist.Insert(ctx, &Record{
		Project:      "mysite",
		Transport:    "api",
		Status:       StatusRejected,
		ErrorMessage: &errMsg,
	})
	if err != nil {
		t.Fatalf("Failed to insert second record: %v", err)
	}

	latest, err := hist.Latest(ctx, "mysite")
	if err != nil {
		t.Fatalf("Failed to query latest record: %v", err)
	}
	if latest == nil {
		t.Fatal("Latest() = nil, want record")
	}
	if latest.Status != StatusRejected {
		t.Errorf("latest status = %q, want %q", latest.Status, StatusRejected)
	}
	if latest.ErrorMessage == nil || *latest.ErrorMessage != errMsg {
		t.Errorf("latest error = %v, want %q", latest.ErrorMessage, errMsg)
	}
}

func TestHistory_LatestUnknownProject(t *testing.T) {
	hist := openTestHistory(t)

	latest, err := hist.Latest(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest != nil {
		t.Errorf("Latest() = %+v, want nil for unknown project", latest)
	}
}

func TestHistory_ForProject(t *testing.T) {
	hist := openTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := hist.Insert(ctx, &Record{
			Project:   "mysite",
			Transport: "webhook",
			Status:    StatusSuccess,
		}); err != nil {
			t.Fatalf("Failed to insert record %d: %v", i, err)
		}
	}
	if _, err := hist.Insert(ctx, &Record{
		Project:   "other",
		Transport: "api",
		Status:    StatusTransportFailure,
	}); err != nil {
		t.Fatalf("Failed to insert other-project record: %v", err)
	}

	records, err := hist.ForProject(ctx, "mysite", 3)
	if err != nil {
		t.Fatalf("ForProject() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("ForProject() returned %d records, want 3", len(records))
	}
	for _, r := range records {
		if r.Project != "mysite" {
			t.Errorf("record project = %q, want mysite", r.Project)
		}
	}
}

func TestHistory_Recent(t *testing.T) {
	hist := openTestHistory(t)
	ctx := context.Background()

	for _, project := range []string{"a", "b", "c"} {
		if _, err := hist.Insert(ctx, &Record{
			Project:   project,
			Transport: "api",
			Status:    StatusSuccess,
		}); err != nil {
			t.Fatalf("Failed to insert record for %s: %v", project, err)
		}
	}

	records, err := hist.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Recent() returned %d records, want 3", len(records))
	}
	if records[0].Project != "c" {
		t.Errorf("newest record project = %q, want c", records[0].Project)
	}
}
