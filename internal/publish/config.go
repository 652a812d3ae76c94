package publish

import "time"

// DefaultTimeout bounds the outbound deploy trigger call when the caller
// does not supply a timeout of its own.
const DefaultTimeout = 30 * time.Second

// Mode identifies which of the mutually exclusive publish modes is active.
type Mode int

const (
	// ModeGenerate writes deployable artifacts to a local directory.
	ModeGenerate Mode = iota + 1
	// ModeWorkflow emits a GitHub Actions workflow definition.
	ModeWorkflow
	// ModeDeploy builds and pushes the image, then triggers a remote deploy.
	ModeDeploy
)

// String returns the flag name that selects the mode.
func (m Mode) String() string {
	switch m {
	case ModeGenerate:
		return "generate"
	case ModeWorkflow:
		return "workflow"
	case ModeDeploy:
		return "deploy"
	default:
		return "unknown"
	}
}

// Transport identifies the deploy trigger transport within ModeDeploy.
type Transport int

const (
	// TransportNone means no trigger transport is configured.
	TransportNone Transport = iota
	// TransportAPI triggers via the Dokploy API (base URL, application id, API key).
	TransportAPI
	// TransportWebhook triggers via a pre-built deploy webhook URL.
	TransportWebhook
)

func (t Transport) String() string {
	switch t {
	case TransportAPI:
		return "api"
	case TransportWebhook:
		return "webhook"
	default:
		return "none"
	}
}

// Setting is one raw name/value pair collected from the command line.
type Setting struct {
	Name  string
	Value string
}

// StaticMount maps a mount name to a local directory of static assets.
type StaticMount struct {
	Mount string
	Dir   string
}

// Options holds the raw, unvalidated fields collected by the CLI front-end.
// Resolve turns Options into a Config or rejects them with a
// ConfigurationError before any side effect takes place.
type Options struct {
	// Files are the data file paths given as positional arguments.
	// An empty list is valid: an empty-data deployment still produces
	// the Dockerfile, entrypoint, and requirements.
	Files []string

	Image            string
	GenerateDir      string
	GenerateWorkflow bool

	DokployURL    string
	ApplicationID string
	APIKey        string
	DeployURL     string
	Token         string

	Settings []Setting
	CrossDB  bool
	Timeout  time.Duration

	// Metadata is the raw content of a metadata JSON file, if given.
	Metadata []byte
	Statics  []StaticMount
	Install  []string
	Branch   string

	TemplateDir string
	PluginsDir  string

	Title      string
	License    string
	LicenseURL string
	Source     string
	SourceURL  string
	About      string
	AboutURL   string
}

// Config is the resolved, validated configuration for one publish
// invocation. Exactly one Mode is active; within ModeDeploy exactly one
// Transport is active. Config is treated as an immutable value once
// produced by Resolve.
type Config struct {
	Mode      Mode
	Transport Transport

	Image       string
	GenerateDir string

	DokployURL    string
	ApplicationID string
	APIKey        string
	DeployURL     string
	Token         string

	// Settings holds validated, typed setting values (bool, int64 or string).
	Settings map[string]any
	CrossDB  bool
	Timeout  time.Duration

	// Metadata is the merged metadata document (file content overlaid with
	// the title/license/source/about fields), or nil when none was given.
	Metadata map[string]any

	Statics []StaticMount

	// DatasetteRequirement is the exact requirement line for the serving
	// application, after applying --install overrides or --branch.
	DatasetteRequirement string
	// Install lists extra runtime requirements, excluding any datasette
	// requirement folded into DatasetteRequirement.
	Install []string

	HasTemplates bool
	HasPlugins   bool
}
