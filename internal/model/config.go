package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	BackendRelay   = "relay"
	BackendRedfish = "redfish"

	AuthTypeNone        = "none"
	AuthTypeStaticToken = "static_token"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int      `json:"version"` // fixed 0 for now
	Backend string   `json:"backend"` // "relay" | "redfish"
	Relay   *Relay   `json:"relay,omitempty"`
	Redfish *Redfish `json:"redfish,omitempty"`
	Poll    Poll     `json:"poll"`
	Capture *Capture `json:"capture,omitempty"`
	Service Service  `json:"service"`
}

// Relay configures the job relay service backend.
type Relay struct {
	URL  string `json:"url"`
	Auth Auth   `json:"auth"`
}

// Redfish configures the direct controller backend.
type Redfish struct {
	Scheme   *string `json:"scheme,omitempty"`   // "https" (default) | "http"
	Port     *int    `json:"port,omitempty"`     // controller port, default 443
	Insecure *bool   `json:"insecure,omitempty"` // skip TLS verification
	Auth     Auth    `json:"auth"`
}

// Auth is a tagged union: Type "none" or "static_token".
type Auth struct {
	Type  string `json:"type"`            // "none" | "static_token"
	Token string `json:"token,omitempty"` // required when Type == "static_token"
}

// Poll holds the pool cadence settings as segment durations, e.g. "30s", "5m".
type Poll struct {
	Interval string `json:"interval"`
	Timeout  string `json:"timeout"`
}

// Capture enables recording of wire traffic into a local sqlite file.
type Capture struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Path    *string `json:"path,omitempty"`
}

type Service struct {
	Verbose  *bool          `json:"verbose,omitempty"`
	Log      *string        `json:"log,omitempty"` // "stderr"|"stdout"|"discard"
	Schedule *TimerSchedule `json:"schedule,omitempty"`
}

// TimerSchedule drives the watch mode, either a cron expression or
// a fixed duration between runs.
type TimerSchedule struct {
	Cron     string `json:"cron,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DefaultConfig is what a first run stores to disk.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Backend: BackendRelay,
		Relay: &Relay{
			URL:  "http://localhost:27780",
			Auth: Auth{Type: AuthTypeNone},
		},
		Poll: Poll{
			Interval: "30s",
			Timeout:  "10m",
		},
	}
}
