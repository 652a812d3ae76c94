package project

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dokpub/internal/publish"
)

const (
	MinSecretLength       = 32
	DefaultBranch         = "main"
	DefaultTriggerTimeout = 30
)

// ForbiddenSecrets are placeholder values that must never guard a webhook.
var ForbiddenSecrets = map[string]bool{
	"replace-with-secret":     true,
	"github-webhook-password": true,
	"topsecret":               true,
	"secret":                  true,
	"password":                true,
	"changeme":                true,
}

var (
	projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	branchPattern      = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
)

// ValidateProjectName ensures a project name is safe for use in URLs and
// log output.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name cannot start with '-' or '.'")
	}
	if !projectNamePattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// LoadConfig loads and validates the relay configuration from a YAML file.
func LoadConfig(configPath string) (*Config, map[string]*Project, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Empty YAML files leave the map nil.
	if config.Projects == nil {
		config.Projects = make(map[string]ProjectConfig)
	}

	projects := make(map[string]*Project)
	for name, projectConfig := range config.Projects {
		errors := ValidateProjectConfig(name, projectConfig)
		if len(errors) > 0 {
			return nil, nil, fmt.Errorf("invalid configuration for project '%s':\n%s",
				name, strings.Join(errors, "\n"))
		}

		branch := projectConfig.Branch
		if branch == "" {
			branch = DefaultBranch
		}

		timeout := projectConfig.TriggerTimeout
		if timeout == 0 {
			timeout = DefaultTriggerTimeout
		}

		// Validation above guarantees exactly one transport.
		transport, _ := publish.ResolveTransport(
			projectConfig.DokployURL,
			projectConfig.ApplicationID,
			projectConfig.APIKey,
			projectConfig.DeployURL,
			projectConfig.Token,
		)

		projects[name] = &Project{
			Name:           name,
			Secret:         projectConfig.Secret,
			Branch:         branch,
			Transport:      transport,
			DokployURL:     strings.TrimRight(projectConfig.DokployURL, "/"),
			ApplicationID:  projectConfig.ApplicationID,
			APIKey:         projectConfig.APIKey,
			DeployURL:      projectConfig.DeployURL,
			Token:          projectConfig.Token,
			TriggerTimeout: time.Duration(timeout) * time.Second,
		}
	}

	return &config, projects, nil
}

// ValidateProjectConfig validates a single project configuration.
func ValidateProjectConfig(name string, config ProjectConfig) []string {
	var errors []string

	if err := ValidateProjectName(name); err != nil {
		errors = append(errors, fmt.Sprintf("  - Project '%s': %v", name, err))
	}

	// Validate secret
	if config.Secret == "" {
		errors = append(errors, fmt.Sprintf("  - Project '%s': missing required 'secret' field", name))
	} else {
		if len(config.Secret) < MinSecretLength {
			errors = append(errors, fmt.Sprintf("  - Project '%s': secret too short (minimum %d characters)", name, MinSecretLength))
		}
		if ForbiddenSecrets[strings.ToLower(config.Secret)] {
			errors = append(errors, fmt.Sprintf("  - Project '%s': secret appears to be a placeholder value, replace with real secret", name))
		}
	}

	// Validate trigger transport: exactly one sub-mode must be configured
	transport, err := publish.ResolveTransport(
		config.DokployURL,
		config.ApplicationID,
		config.APIKey,
		config.DeployURL,
		config.Token,
	)
	if err != nil {
		errors = append(errors, fmt.Sprintf("  - Project '%s': %v", name, err))
	} else if transport == publish.TransportNone {
		errors = append(errors, fmt.Sprintf("  - Project '%s': needs either dokploy_url/application_id/api_key or deploy_url", name))
	}

	// Validate branch
	branch := config.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	if strings.HasPrefix(branch, "-") {
		errors = append(errors, fmt.Sprintf("  - Project '%s': branch name cannot start with '-', got '%s'", name, branch))
	} else if !branchPattern.MatchString(branch) {
		errors = append(errors, fmt.Sprintf("  - Project '%s': branch name contains invalid characters, got '%s'", name, branch))
	}

	if config.TriggerTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - Project '%s': trigger_timeout must be a positive integer, got %d", name, config.TriggerTimeout))
	}

	return errors
}
