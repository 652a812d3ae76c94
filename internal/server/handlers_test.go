package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"dokpub/internal/project"
	"dokpub/internal/publish"
)

const testSecret = "test-secret-at-least-32-chars-long-here"

// makeSignature generates the X-Hub-Signature-256 value GitHub would send.
func makeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// setupTestServer builds a relay server with one webhook-transport project
// pointed at deployURL. History is disabled.
func setupTestServer(t *testing.T, deployURL string) (*Server, *project.Project) {
	t.Helper()

	testProject := &project.Project{
		Name:      "test-project",
		Secret:    testSecret,
		Branch:    "main",
		Transport: publish.TransportWebhook,
		DeployURL: deployURL,
	}

	registry := project.NewRegistry(map[string]*project.Project{
		"test-project": testProject,
	})

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	server := NewServer(registry, nil, logger, true)

	return server, testProject
}

func postWebhook(server *Server, payload []byte, event, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleWebhook_UnknownProject(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	payload := []byte(`{"ref":"refs/heads/main"}`)
	req := httptest.NewRequest("POST", "/in/unknown-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["error"] != "Unknown project" {
		t.Errorf("Expected 'Unknown project' error, got %v", response)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	payload := []byte(`{"ref":"refs/heads/main"}`)
	wrongSignature := makeSignature(payload, "wrong-secret-32-chars-long-xxxxxxx")

	rr := postWebhook(server, payload, "push", wrongSignature)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["error"] != "Invalid signature" {
		t.Errorf("Expected 'Invalid signature' error, got %v", response)
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	rr := postWebhook(server, []byte(`{"ref":"refs/heads/main"}`), "push", "")

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	largePayload := make([]byte, MaxPayloadBytes+1)
	rr := postWebhook(server, largePayload, "push", makeSignature(largePayload, testSecret))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
}

func TestHandleWebhook_NonPushEvent(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	payload := []byte(`{"action":"opened"}`)
	rr := postWebhook(server, payload, "pull_request", makeSignature(payload, testSecret))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["message"] != "Ignoring non-push event" {
		t.Errorf("Expected 'Ignoring non-push event' message, got %v", response)
	}
}

func TestHandleWebhook_NonTargetBranch(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	payload := []byte(`{"ref":"refs/heads/feature-branch"}`)
	rr := postWebhook(server, payload, "push", makeSignature(payload, testSecret))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["message"] != "Not target branch, skipping" {
		t.Errorf("Expected skip message, got %v", response)
	}
}

func TestHandleWebhook_TriggersDeploy(t *testing.T) {
	var calls atomic.Int32
	var gotAuth atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer backend.Close()

	server, testProject := setupTestServer(t, backend.URL+"/hook/deploy")
	testProject.Token = "relay-token"

	payload := []byte(`{"ref":"refs/heads/main","after":"abc123"}`)
	rr := postWebhook(server, payload, "push", makeSignature(payload, testSecret))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	server.WaitForTriggers()

	if calls.Load() != 1 {
		t.Errorf("Expected exactly one trigger call, got %d", calls.Load())
	}
	if auth, _ := gotAuth.Load().(string); auth != "Bearer relay-token" {
		t.Errorf("Authorization = %q, want Bearer relay-token", auth)
	}
}

func TestHandleWebhook_BusyProject(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	if !server.Locks.TryLock("test-project") {
		t.Fatal("Failed to pre-acquire lock")
	}
	defer server.Locks.Unlock("test-project")

	payload := []byte(`{"ref":"refs/heads/main"}`)
	rr := postWebhook(server, payload, "push", makeSignature(payload, testSecret))

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("status = %v, want ok", response["status"])
	}
	if response["project_count"] != float64(1) {
		t.Errorf("project_count = %v, want 1", response["project_count"])
	}
}

func TestHandleStatus_NoHistory(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	req := httptest.NewRequest("GET", "/status/test-project", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}

func TestHandleStatus_UnknownProject(t *testing.T) {
	server, _ := setupTestServer(t, "https://dokploy.example.com/hook")

	req := httptest.NewRequest("GET", "/status/nope", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}
