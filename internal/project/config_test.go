package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dokpub/internal/publish"
)

const testSecret = "valid-secret-with-at-least-32-chars-here"

func TestValidateProjectConfig_ValidAPITransport(t *testing.T) {
	config := ProjectConfig{
		Secret:        testSecret,
		Branch:        "main",
		DokployURL:    "https://dokploy.example.com",
		ApplicationID: "app-123",
		APIKey:        "key",
	}

	errors := ValidateProjectConfig("mysite", config)
	if len(errors) > 0 {
		t.Errorf("Expected valid config to pass validation, got errors: %v", errors)
	}
}

func TestValidateProjectConfig_ValidWebhookTransport(t *testing.T) {
	config := ProjectConfig{
		Secret:    testSecret,
		DeployURL: "https://dokploy.example.com/hook/deploy",
		Token:     "tok",
	}

	errors := ValidateProjectConfig("mysite", config)
	if len(errors) > 0 {
		t.Errorf("Expected valid config to pass validation, got errors: %v", errors)
	}
}

func TestValidateProjectConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		project string
		config  ProjectConfig
		wantErr string
	}{
		{
			"missing secret",
			"mysite",
			ProjectConfig{DeployURL: "https://d.example.com/hook"},
			"missing required 'secret'",
		},
		{
			"short secret",
			"mysite",
			ProjectConfig{Secret: "short", DeployURL: "https://d.example.com/hook"},
			"secret too short",
		},
		{
			"placeholder secret",
			"mysite",
			ProjectConfig{Secret: "changeme", DeployURL: "https://d.example.com/hook"},
			"placeholder",
		},
		{
			"no transport",
			"mysite",
			ProjectConfig{Secret: testSecret},
			"needs either",
		},
		{
			"both transports",
			"mysite",
			ProjectConfig{
				Secret:        testSecret,
				DokployURL:    "https://d.example.com",
				ApplicationID: "app", APIKey: "key",
				DeployURL: "https://d.example.com/hook",
			},
			"mutually exclusive",
		},
		{
			"incomplete api triple",
			"mysite",
			ProjectConfig{Secret: testSecret, DokployURL: "https://d.example.com"},
			"as well",
		},
		{
			"bad project name",
			"my site!",
			ProjectConfig{Secret: testSecret, DeployURL: "https://d.example.com/hook"},
			"invalid characters",
		},
		{
			"bad branch",
			"mysite",
			ProjectConfig{Secret: testSecret, Branch: "-main", DeployURL: "https://d.example.com/hook"},
			"branch name",
		},
		{
			"negative timeout",
			"mysite",
			ProjectConfig{Secret: testSecret, DeployURL: "https://d.example.com/hook", TriggerTimeout: -1},
			"trigger_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := ValidateProjectConfig(tt.project, tt.config)
			if len(errors) == 0 {
				t.Fatalf("Expected validation errors, got none")
			}
			found := false
			for _, e := range errors {
				if strings.Contains(e, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, errors)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	configYAML := `
projects:
  mysite:
    secret: valid-secret-with-at-least-32-chars-here
    branch: production
    dokploy_url: https://dokploy.example.com/
    application_id: app-123
    api_key: key
  hooked:
    secret: another-secret-with-at-least-32-chars-x
    deploy_url: https://dokploy.example.com/hook/deploy
    token: tok
    trigger_timeout: 10
`
	configPath := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, projects, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("LoadConfig() returned %d projects, want 2", len(projects))
	}

	mysite := projects["mysite"]
	if mysite.Transport != publish.TransportAPI {
		t.Errorf("mysite transport = %v, want API", mysite.Transport)
	}
	if mysite.Branch != "production" {
		t.Errorf("mysite branch = %q, want production", mysite.Branch)
	}
	if mysite.DokployURL != "https://dokploy.example.com" {
		t.Errorf("mysite dokploy url = %q, want trailing slash trimmed", mysite.DokployURL)
	}
	if mysite.TriggerTimeout != DefaultTriggerTimeout*time.Second {
		t.Errorf("mysite timeout = %v, want default", mysite.TriggerTimeout)
	}

	hooked := projects["hooked"]
	if hooked.Transport != publish.TransportWebhook {
		t.Errorf("hooked transport = %v, want webhook", hooked.Transport)
	}
	if hooked.TriggerTimeout != 10*time.Second {
		t.Errorf("hooked timeout = %v, want 10s", hooked.TriggerTimeout)
	}
}

func TestLoadConfig_InvalidProject(t *testing.T) {
	configYAML := `
projects:
  broken:
    secret: short
`
	configPath := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, _, err := LoadConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("LoadConfig() error = %v, want validation failure naming project", err)
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, projects, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("LoadConfig() returned %d projects, want 0", len(projects))
	}
}

func TestMatchesRef(t *testing.T) {
	p := &Project{Branch: "main"}
	if !p.MatchesRef("refs/heads/main") {
		t.Error("MatchesRef(refs/heads/main) = false, want true")
	}
	if p.MatchesRef("refs/heads/dev") {
		t.Error("MatchesRef(refs/heads/dev) = true, want false")
	}
	if p.MatchesRef("refs/tags/v1") {
		t.Error("MatchesRef(refs/tags/v1) = true, want false")
	}
}
