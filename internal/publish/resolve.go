package publish

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// defaultDatasetteRequirement pins the serving application version used in
// generated requirements files unless the caller overrides it.
const defaultDatasetteRequirement = "datasette==0.65.1"

// Resolve validates raw options and produces the configuration for one
// publish invocation. It fails fast with a *ConfigurationError whenever the
// mutual-exclusion invariants are violated, so that no network or filesystem
// side effect ever happens for contradictory intent.
func Resolve(opts Options) (*Config, error) {
	transport, err := ResolveTransport(opts.DokployURL, opts.ApplicationID, opts.APIKey, opts.DeployURL, opts.Token)
	if err != nil {
		return nil, err
	}

	mode, err := resolveMode(opts, transport)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeDeploy:
		if transport == TransportNone {
			return nil, configErr(
				"direct deployment requires either --dokploy-url/--application-id/--api-key or --deploy-url",
				"--image")
		}
	default:
		// A populated trigger transport without an image is a configuration
		// error, never a guessed default image.
		if transport != TransportNone {
			return nil, configErr("--image is required for direct deployment, use --generate-dir to export files instead",
				transportFields(transport)...)
		}
	}

	if err := checkDuplicateFiles(opts.Files); err != nil {
		return nil, err
	}

	settings, err := resolveSettings(opts.Settings)
	if err != nil {
		return nil, err
	}

	statics, err := resolveStatics(opts.Statics)
	if err != nil {
		return nil, err
	}

	metadata, err := resolveMetadata(opts)
	if err != nil {
		return nil, err
	}

	datasetteReq, install, err := resolveRequirements(opts.Install, opts.Branch)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Config{
		Mode:                 mode,
		Transport:            transport,
		Image:                opts.Image,
		GenerateDir:          opts.GenerateDir,
		DokployURL:           strings.TrimRight(opts.DokployURL, "/"),
		ApplicationID:        opts.ApplicationID,
		APIKey:               opts.APIKey,
		DeployURL:            opts.DeployURL,
		Token:                opts.Token,
		Settings:             settings,
		CrossDB:              opts.CrossDB,
		Timeout:              timeout,
		Metadata:             metadata,
		Statics:              statics,
		DatasetteRequirement: datasetteReq,
		Install:              install,
		HasTemplates:         opts.TemplateDir != "",
		HasPlugins:           opts.PluginsDir != "",
	}, nil
}

// ResolveTransport validates the trigger transport fields and returns which
// sub-mode they select. Exactly one of the API triple and the webhook URL
// may be populated; a bearer token is only meaningful for the webhook
// sub-mode. Shared with the relay server's project validation.
func ResolveTransport(dokployURL, applicationID, apiKey, deployURL, token string) (Transport, error) {
	var apiFields, apiMissing []string
	for _, f := range []struct{ flag, value string }{
		{"--dokploy-url", dokployURL},
		{"--application-id", applicationID},
		{"--api-key", apiKey},
	} {
		if f.value != "" {
			apiFields = append(apiFields, f.flag)
		} else {
			apiMissing = append(apiMissing, f.flag)
		}
	}

	api := len(apiFields) > 0
	webhook := deployURL != ""

	if api && webhook {
		return TransportNone, configErr(
			"API trigger and webhook trigger are mutually exclusive",
			append(apiFields, "--deploy-url")...)
	}
	if api && len(apiMissing) > 0 {
		return TransportNone, configErr(
			fmt.Sprintf("API trigger needs %s as well", strings.Join(apiMissing, ", ")),
			apiFields...)
	}
	if token != "" && !webhook {
		return TransportNone, configErr(
			"--token is only used for webhook deployments and needs --deploy-url", "--token")
	}

	switch {
	case api:
		if err := checkHTTPURL("--dokploy-url", dokployURL); err != nil {
			return TransportNone, err
		}
		return TransportAPI, nil
	case webhook:
		if err := checkHTTPURL("--deploy-url", deployURL); err != nil {
			return TransportNone, err
		}
		return TransportWebhook, nil
	default:
		return TransportNone, nil
	}
}

func resolveMode(opts Options, transport Transport) (Mode, error) {
	var selected []string
	var mode Mode
	if opts.GenerateDir != "" {
		selected = append(selected, "--generate-dir")
		mode = ModeGenerate
	}
	if opts.GenerateWorkflow {
		selected = append(selected, "--generate-github-actions")
		mode = ModeWorkflow
	}
	if opts.Image != "" {
		selected = append(selected, "--image")
		mode = ModeDeploy
	}

	if len(selected) == 0 {
		if transport != TransportNone {
			return 0, configErr("--image is required for direct deployment, use --generate-dir to export files instead",
				transportFields(transport)...)
		}
		return 0, configErr("one of --generate-dir, --generate-github-actions or --image is required")
	}
	if len(selected) > 1 {
		return 0, configErr("publish modes are mutually exclusive", selected...)
	}
	return mode, nil
}

func transportFields(t Transport) []string {
	if t == TransportWebhook {
		return []string{"--deploy-url"}
	}
	return []string{"--dokploy-url", "--application-id", "--api-key"}
}

func checkHTTPURL(flag, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configErr(fmt.Sprintf("%s must be an http(s) URL, got %q", flag, raw), flag)
	}
	return nil
}

func checkDuplicateFiles(files []string) error {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		if seen[name] {
			return configErr(fmt.Sprintf("duplicate data file name %q", name))
		}
		seen[name] = true
	}
	return nil
}

func resolveStatics(mounts []StaticMount) ([]StaticMount, error) {
	seen := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		if m.Mount == "" || m.Dir == "" {
			return nil, configErr("static mounts must be given as mountpoint:directory", "--static")
		}
		if strings.ContainsAny(m.Mount, "/\\") || m.Mount == "." || m.Mount == ".." {
			return nil, configErr(fmt.Sprintf("invalid static mount name %q", m.Mount), "--static")
		}
		if seen[m.Mount] {
			return nil, configErr(fmt.Sprintf("duplicate static mount %q", m.Mount), "--static")
		}
		seen[m.Mount] = true
	}
	return mounts, nil
}

func resolveMetadata(opts Options) (map[string]any, error) {
	var metadata map[string]any
	if len(opts.Metadata) > 0 {
		if err := json.Unmarshal(opts.Metadata, &metadata); err != nil {
			return nil, configErr(fmt.Sprintf("metadata is not valid JSON: %v", err), "--metadata")
		}
	}

	extras := map[string]string{
		"title":       opts.Title,
		"license":     opts.License,
		"license_url": opts.LicenseURL,
		"source":      opts.Source,
		"source_url":  opts.SourceURL,
		"about":       opts.About,
		"about_url":   opts.AboutURL,
	}
	for key, value := range extras {
		if value == "" {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[key] = value
	}

	return metadata, nil
}

// resolveRequirements picks the datasette requirement line. An explicit
// datasette entry in the install list wins; --branch swaps in a GitHub
// archive URL; combining the two is contradictory.
func resolveRequirements(install []string, branch string) (string, []string, error) {
	datasetteReq := ""
	rest := make([]string, 0, len(install))
	for _, req := range install {
		if isDatasetteRequirement(req) && datasetteReq == "" {
			datasetteReq = req
			continue
		}
		rest = append(rest, req)
	}

	if datasetteReq != "" && branch != "" {
		return "", nil, configErr("cannot use --branch and --install datasette at the same time",
			"--branch", "--install")
	}

	if datasetteReq == "" {
		if branch != "" {
			datasetteReq = fmt.Sprintf("https://github.com/simonw/datasette/archive/%s.zip", branch)
		} else {
			datasetteReq = defaultDatasetteRequirement
		}
	}

	return datasetteReq, rest, nil
}

func isDatasetteRequirement(req string) bool {
	req = strings.ToLower(strings.TrimSpace(req))
	if !strings.HasPrefix(req, "datasette") {
		return false
	}
	if req == "datasette" {
		return true
	}
	switch req[len("datasette")] {
	case '=', '<', '>', '!', '~', '[', ' ':
		return true
	}
	return false
}
