package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"dokpub/internal/history"
	"dokpub/internal/project"
	"dokpub/internal/publish"
	"dokpub/internal/server"
)

const relaySecret = "integration-secret-32-chars-long-xx"

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func pushRequest(target string, payload []byte, signature string) *http.Request {
	req := httptest.NewRequest("POST", target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", signature)
	return req
}

// TestRelayEndToEnd drives the whole relay path: a YAML project config is
// loaded, a signed GitHub push arrives, and the configured Dokploy API
// endpoint receives exactly one deploy call whose outcome lands in history.
func TestRelayEndToEnd(t *testing.T) {
	var calls atomic.Int32
	var gotApplicationID atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotApplicationID.Store(body["applicationId"])
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer backend.Close()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "projects.yaml")
	configYAML := fmt.Sprintf(`projects:
  docs-site:
    secret: %q
    branch: main
    dokploy_url: %q
    application_id: app-docs
    api_key: k-relay
`, relaySecret, backend.URL)
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, projects, err := project.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	hist, err := history.New(filepath.Join(tmpDir, "triggers.db"))
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	defer hist.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := server.NewServer(project.NewRegistry(projects), hist, logger, true)
	router := srv.Router()

	payload := []byte(`{"ref":"refs/heads/main","after":"c0ffee12"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, pushRequest("/in/docs-site", payload, signPayload(payload, relaySecret)))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Webhook status = %d, want 202: %s", rr.Code, rr.Body.String())
	}

	srv.WaitForTriggers()

	if calls.Load() != 1 {
		t.Fatalf("Dokploy backend received %d calls, want 1", calls.Load())
	}
	if id, _ := gotApplicationID.Load().(string); id != "app-docs" {
		t.Errorf("applicationId = %q, want app-docs", id)
	}

	latest, err := hist.Latest(context.Background(), "docs-site")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil {
		t.Fatal("No history record written")
	}
	if latest.Status != history.StatusSuccess {
		t.Errorf("Status = %q, want %q", latest.Status, history.StatusSuccess)
	}
	if latest.CommitHash == nil || *latest.CommitHash != "c0ffee12" {
		t.Errorf("CommitHash = %v, want c0ffee12", latest.CommitHash)
	}

	// The status endpoint should now report the trigger.
	statusRR := httptest.NewRecorder()
	router.ServeHTTP(statusRR, httptest.NewRequest("GET", "/status/docs-site", nil))
	if statusRR.Code != http.StatusOK {
		t.Fatalf("Status endpoint = %d, want 200", statusRR.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(statusRR.Body.Bytes(), &status); err != nil {
		t.Fatalf("Status response is not JSON: %v", err)
	}
	if status["latest_trigger"] == nil {
		t.Error("Status response missing latest_trigger")
	}
}

// TestRelayRecordsFailedTrigger verifies that an unreachable platform is
// recorded as a transport failure, not dropped.
func TestRelayRecordsFailedTrigger(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close() // deliberately unreachable

	tmpDir := t.TempDir()
	hist, err := history.New(filepath.Join(tmpDir, "triggers.db"))
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	defer hist.Close()

	registry := project.NewRegistry(map[string]*project.Project{
		"docs-site": {
			Name:      "docs-site",
			Secret:    relaySecret,
			Branch:    "main",
			Transport: publish.TransportWebhook,
			DeployURL: backend.URL + "/hook",
		},
	})

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := server.NewServer(registry, hist, logger, true)

	payload := []byte(`{"ref":"refs/heads/main"}`)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, pushRequest("/in/docs-site", payload, signPayload(payload, relaySecret)))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Webhook status = %d, want 202", rr.Code)
	}

	srv.WaitForTriggers()

	latest, err := hist.Latest(context.Background(), "docs-site")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil {
		t.Fatal("No history record written")
	}
	if latest.Status != history.StatusTransportFailure {
		t.Errorf("Status = %q, want %q", latest.Status, history.StatusTransportFailure)
	}
	if latest.ErrorMessage == nil {
		t.Error("Transport failure should carry an error message")
	}
}
