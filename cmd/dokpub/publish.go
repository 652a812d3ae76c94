package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"dokpub/internal/artifact"
	"dokpub/internal/history"
	"dokpub/internal/publish"
	"dokpub/internal/trigger"
	"dokpub/pkg/cmdutil"
	"dokpub/pkg/fileutil"

	"github.com/spf13/cobra"
)

// dockerTimeout bounds docker build and push. Image builds are normally
// seconds; anything beyond this is stuck.
const dockerTimeout = 15 * time.Minute

var publishFlags struct {
	image            string
	generateDir      string
	generateWorkflow bool

	dokployURL    string
	applicationID string
	apiKey        string
	deployURL     string
	token         string

	settings []string
	crossDB  bool
	timeout  time.Duration

	metadataFile string
	statics      []string
	install      []string
	branch       string
	templateDir  string
	pluginsDir   string

	title      string
	license    string
	licenseURL string
	source     string
	sourceURL  string
	about      string
	aboutURL   string

	historyDB string
}

var publishCmd = &cobra.Command{
	Use:   "publish [files...]",
	Short: "Publish data files to Dokploy",
	Long: `Package local data files into a deployable Datasette application and
publish it to a self-hosted Dokploy platform.

Exactly one mode applies per invocation:

  --generate-dir DIR          write the deployable files to DIR
  --generate-github-actions   print a GitHub Actions workflow to stdout
  (neither)                   build and push --image, then trigger a deploy

Direct deployment triggers either the Dokploy API (--dokploy-url,
--application-id, --api-key) or a deploy webhook (--deploy-url, optionally
--token).`,
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()

	f.StringVar(&publishFlags.image, "image", "", "Container image reference to build and push")
	f.StringVar(&publishFlags.generateDir, "generate-dir", "", "Write generated application files to this directory instead of deploying")
	f.BoolVar(&publishFlags.generateWorkflow, "generate-github-actions", false, "Print a GitHub Actions deploy workflow to stdout")

	f.StringVar(&publishFlags.dokployURL, "dokploy-url", getEnvOrDefault("DOKPLOY_URL", ""), "Base URL of the Dokploy instance")
	f.StringVar(&publishFlags.applicationID, "application-id", getEnvOrDefault("DOKPLOY_APPLICATION_ID", ""), "Dokploy application id to redeploy")
	f.StringVar(&publishFlags.apiKey, "api-key", getEnvOrDefault("DOKPLOY_API_KEY", ""), "Dokploy API key")
	f.StringVar(&publishFlags.deployURL, "deploy-url", "", "Pre-built deploy webhook URL")
	f.StringVar(&publishFlags.token, "token", getEnvOrDefault("DOKPLOY_TOKEN", ""), "Bearer token for the deploy webhook")

	f.StringArrayVar(&publishFlags.settings, "setting", nil, "Datasette setting as name=value (repeatable)")
	f.BoolVar(&publishFlags.crossDB, "crossdb", false, "Enable cross-database SQL queries")
	f.DurationVar(&publishFlags.timeout, "timeout", 0, "Timeout for the deploy trigger call (default 30s)")

	f.StringVar(&publishFlags.metadataFile, "metadata", "", "Path to a metadata JSON file")
	f.StringArrayVar(&publishFlags.statics, "static", nil, "Static assets as mountname:directory (repeatable)")
	f.StringArrayVar(&publishFlags.install, "install", nil, "Additional Python package to install (repeatable)")
	f.StringVar(&publishFlags.branch, "branch", "", "Install Datasette from a GitHub branch instead of a release")
	f.StringVar(&publishFlags.templateDir, "template-dir", "", "Directory of custom templates")
	f.StringVar(&publishFlags.pluginsDir, "plugins-dir", "", "Directory of one-off plugins")

	f.StringVar(&publishFlags.title, "title", "", "Title for the served instance")
	f.StringVar(&publishFlags.license, "license", "", "License label")
	f.StringVar(&publishFlags.licenseURL, "license_url", "", "License URL")
	f.StringVar(&publishFlags.source, "source", "", "Source label")
	f.StringVar(&publishFlags.sourceURL, "source_url", "", "Source URL")
	f.StringVar(&publishFlags.about, "about", "", "About label")
	f.StringVar(&publishFlags.aboutURL, "about_url", "", "About URL")

	f.StringVar(&publishFlags.historyDB, "db", "", "Record the trigger outcome in this SQLite database")
}

func runPublish(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(args)
	if err != nil {
		return err
	}

	cfg, err := publish.Resolve(*opts)
	if err != nil {
		return err
	}

	switch cfg.Mode {
	case publish.ModeWorkflow:
		_, err := os.Stdout.Write(artifact.Workflow())
		return err

	case publish.ModeGenerate:
		set, err := generateArtifacts(cfg, args)
		if err != nil {
			return err
		}
		if err := writeArtifacts(cfg.GenerateDir, set); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Your generated application files have been written to:")
		fmt.Fprintf(os.Stderr, "    %s\n\n", cfg.GenerateDir)
		fmt.Fprintln(os.Stderr, "To deploy from GitHub Actions:")
		fmt.Fprintln(os.Stderr, "1. Commit and push these files")
		fmt.Fprintln(os.Stderr, "2. Run: dokpub publish --generate-github-actions > .github/workflows/deploy-datasette.yml")
		return nil

	case publish.ModeDeploy:
		return runDeploy(cmd.Context(), cfg, args)

	default:
		return fmt.Errorf("unknown publish mode %v", cfg.Mode)
	}
}

// buildOptions translates flag values into the raw option set the
// resolver validates. Only file reads that are needed to validate
// happen here; nothing is written yet.
func buildOptions(files []string) (*publish.Options, error) {
	opts := publish.Options{
		Files:            files,
		Image:            publishFlags.image,
		GenerateDir:      publishFlags.generateDir,
		GenerateWorkflow: publishFlags.generateWorkflow,
		DokployURL:       publishFlags.dokployURL,
		ApplicationID:    publishFlags.applicationID,
		APIKey:           publishFlags.apiKey,
		DeployURL:        publishFlags.deployURL,
		Token:            publishFlags.token,
		CrossDB:          publishFlags.crossDB,
		Timeout:          publishFlags.timeout,
		Install:          publishFlags.install,
		Branch:           publishFlags.branch,
		TemplateDir:      publishFlags.templateDir,
		PluginsDir:       publishFlags.pluginsDir,
		Title:            publishFlags.title,
		License:          publishFlags.license,
		LicenseURL:       publishFlags.licenseURL,
		Source:           publishFlags.source,
		SourceURL:        publishFlags.sourceURL,
		About:            publishFlags.about,
		AboutURL:         publishFlags.aboutURL,
	}

	for _, raw := range publishFlags.settings {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("--setting %q should be name=value", raw)
		}
		opts.Settings = append(opts.Settings, publish.Setting{Name: name, Value: value})
	}

	for _, raw := range publishFlags.statics {
		mount, dir, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("--static %q should be mountname:directory", raw)
		}
		opts.Statics = append(opts.Statics, publish.StaticMount{Mount: mount, Dir: dir})
	}

	if publishFlags.metadataFile != "" {
		data, err := os.ReadFile(publishFlags.metadataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file: %w", err)
		}
		opts.Metadata = data
	}

	return &opts, nil
}

// generateArtifacts loads the data files and asset directories into memory
// and renders the artifact set.
func generateArtifacts(cfg *publish.Config, files []string) (*artifact.Set, error) {
	var in artifact.Input

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read data file: %w", err)
		}
		in.Databases = append(in.Databases, artifact.DataFile{
			Name: filepath.Base(path),
			Data: data,
		})
	}

	for _, static := range cfg.Statics {
		files, err := readAssetDir(static.Dir)
		if err != nil {
			return nil, err
		}
		in.Statics = append(in.Statics, artifact.StaticFiles{
			Mount: static.Mount,
			Files: files,
		})
	}

	if cfg.HasTemplates {
		files, err := readAssetDir(publishFlags.templateDir)
		if err != nil {
			return nil, err
		}
		in.Templates = files
	}

	if cfg.HasPlugins {
		files, err := readAssetDir(publishFlags.pluginsDir)
		if err != nil {
			return nil, err
		}
		in.Plugins = files
	}

	return artifact.Generate(in, cfg), nil
}

// readAssetDir loads every file under dir, with paths relative to it.
func readAssetDir(dir string) ([]artifact.DataFile, error) {
	entries, err := fileutil.ReadTree(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	files := make([]artifact.DataFile, 0, len(entries))
	for _, entry := range entries {
		files = append(files, artifact.DataFile{Name: entry.Path, Data: entry.Data})
	}
	return files, nil
}

func writeArtifacts(dir string, set *artifact.Set) error {
	entries := make([]fileutil.TreeEntry, 0, set.Len())
	for _, f := range set.Files() {
		entries = append(entries, fileutil.TreeEntry{Path: f.Path, Data: f.Data})
	}
	return fileutil.WriteTree(dir, entries)
}

// runDeploy builds and pushes the container image, then fires the deploy
// trigger. Artifacts are staged in a temporary build context.
func runDeploy(ctx context.Context, cfg *publish.Config, files []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker is required for direct deployment, see https://docs.docker.com/get-docker/")
	}

	set, err := generateArtifacts(cfg, files)
	if err != nil {
		return err
	}

	buildDir, err := os.MkdirTemp("", "dokpub-build-")
	if err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(buildDir)

	if err := writeArtifacts(buildDir, set); err != nil {
		return err
	}

	execOpts := cmdutil.ExecOptions{
		Dir:     buildDir,
		Timeout: dockerTimeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	for _, dockerCmd := range [][]string{
		{"docker", "build", "-t", cfg.Image, "."},
		{"docker", "push", cfg.Image},
	} {
		logger.Info("Running command", "command", cmdutil.FormatCommand(dockerCmd))
		if _, err := cmdutil.Run(ctx, execOpts, dockerCmd); err != nil {
			return fmt.Errorf("%s: %w", cmdutil.FormatCommand(dockerCmd), err)
		}
	}

	start := time.Now()
	result := trigger.NewClient(logger).Trigger(ctx, cfg)
	recordOutcome(ctx, logger, cfg, result, time.Since(start))

	if !result.OK() {
		return fmt.Errorf("deploy trigger failed: %s", result.Reason())
	}

	logger.Info("Deploy triggered", "transport", cfg.Transport.String(), "image", cfg.Image)
	return nil
}

// recordOutcome appends the trigger result to the local history database
// when one was requested. Failures to record never fail the deploy.
func recordOutcome(ctx context.Context, logger *slog.Logger, cfg *publish.Config, result trigger.Result, elapsed time.Duration) {
	if publishFlags.historyDB == "" {
		return
	}

	hist, err := history.New(publishFlags.historyDB)
	if err != nil {
		logger.Warn("Failed to open history database", "error", err)
		return
	}
	defer hist.Close()

	status := history.StatusSuccess
	var errorMsg *string
	if !result.OK() {
		reason := result.Reason()
		errorMsg = &reason
		if result.Outcome == trigger.Rejected {
			status = history.StatusRejected
		} else {
			status = history.StatusTransportFailure
		}
	}

	duration := elapsed.Seconds()
	record := &history.Record{
		Project:         cfg.Image,
		Image:           cfg.Image,
		Transport:       cfg.Transport.String(),
		Status:          status,
		DurationSeconds: &duration,
		ErrorMessage:    errorMsg,
	}
	if _, err := hist.Insert(ctx, record); err != nil {
		logger.Warn("Failed to record trigger outcome", "error", err)
	}
}
