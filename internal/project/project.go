// Package project loads and validates the relay server's project
// configuration: which webhook secret guards each project, which branch
// deploys, and which Dokploy trigger transport to use.
package project

import (
	"fmt"
	"time"

	"dokpub/internal/publish"
)

// Project represents a validated relay project configuration.
type Project struct {
	Name      string
	Secret    string
	Branch    string
	Transport publish.Transport

	DokployURL    string
	ApplicationID string
	APIKey        string
	DeployURL     string
	Token         string

	TriggerTimeout time.Duration
}

// ProjectConfig represents the YAML configuration for a project.
type ProjectConfig struct {
	Secret string `yaml:"secret"`
	Branch string `yaml:"branch"`

	DokployURL    string `yaml:"dokploy_url"`
	ApplicationID string `yaml:"application_id"`
	APIKey        string `yaml:"api_key"`
	DeployURL     string `yaml:"deploy_url"`
	Token         string `yaml:"token"`

	// TriggerTimeout bounds the outbound trigger call, in seconds.
	TriggerTimeout int `yaml:"trigger_timeout"`
}

// Config represents the root configuration structure.
type Config struct {
	Projects map[string]ProjectConfig `yaml:"projects"`
}

// MatchesRef checks if a git ref matches the project's target branch.
func (p *Project) MatchesRef(ref string) bool {
	return ref == fmt.Sprintf("refs/heads/%s", p.Branch)
}

// PublishConfig builds the deploy-mode configuration the trigger client
// consumes. The relay never builds images, so no image is involved; the
// remote platform redeploys from its configured image source.
func (p *Project) PublishConfig() *publish.Config {
	return &publish.Config{
		Mode:          publish.ModeDeploy,
		Transport:     p.Transport,
		DokployURL:    p.DokployURL,
		ApplicationID: p.ApplicationID,
		APIKey:        p.APIKey,
		DeployURL:     p.DeployURL,
		Token:         p.Token,
		Timeout:       p.TriggerTimeout,
	}
}
