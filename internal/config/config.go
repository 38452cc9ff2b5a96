package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	ProfilesPath string `envconfig:"PROFILES_PATH" default:""`

	// External tools. AuthTool is the opaque authenticator command; TunnelTool
	// is the subprocess that holds the forwarding channel open.
	AuthTool      string `envconfig:"AUTH_TOOL" default:"cloudauth"`
	TunnelTool    string `envconfig:"TUNNEL_TOOL" default:"bastion-tunnel"`
	BastionTarget string `envconfig:"BASTION_TARGET" default:"bastion.db.internal:22"`
	RemoteDBPort  int    `envconfig:"REMOTE_DB_PORT" default:"3306"`

	// The tunnel tool gives no ready signal; a launch that survives
	// ConfirmDelay without a failure event is treated as connected.
	ConfirmDelay  time.Duration `envconfig:"CONFIRM_DELAY" default:"5s"`
	ProbeTimeout  time.Duration `envconfig:"PROBE_TIMEOUT" default:"800ms"`
	PortScanCount int           `envconfig:"PORT_SCAN_COUNT" default:"50"`

	AuditRetentionDays int `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
}

// Profile identifies a deployment target: its preferred local tunnel port and
// the remote database host behind the bastion.
type Profile struct {
	PreferredPort int    `yaml:"preferred_port"`
	RemoteHost    string `yaml:"remote_host"`
}

var Cfg Settings

// Environments holds the static environment profiles. Immutable after Load.
var Environments map[string]Profile

// defaultEnvironments are the compiled-in profiles, overridable via a YAML
// file at ProfilesPath.
var defaultEnvironments = map[string]Profile{
	"sit":  {PreferredPort: 4085, RemoteHost: "sit-db.internal"},
	"uat":  {PreferredPort: 4086, RemoteHost: "uat-db.internal"},
	"prod": {PreferredPort: 4087, RemoteHost: "prod-db.internal"},
}

func Load() {
	if err := envconfig.Process("TUNNELGATE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if Cfg.LogPath == "" {
		Cfg.LogPath = Cfg.DataPath + "/tunnelgate.log"
	}
	if Cfg.DatabasePath == "" {
		Cfg.DatabasePath = Cfg.DataPath + "/tunnelgate.db"
	}

	envs, err := LoadProfiles(Cfg.ProfilesPath)
	if err != nil {
		log.Fatalf("failed to load environment profiles: %v", err)
	}
	Environments = envs
}

// LoadProfiles returns the environment profiles, merging the YAML file at
// path over the compiled-in defaults. An empty path returns the defaults.
func LoadProfiles(path string) (map[string]Profile, error) {
	envs := make(map[string]Profile, len(defaultEnvironments))
	for id, p := range defaultEnvironments {
		envs[id] = p
	}
	if path == "" {
		return envs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var fromFile map[string]Profile
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}
	for id, p := range fromFile {
		if p.PreferredPort <= 0 || p.RemoteHost == "" {
			return nil, fmt.Errorf("profile %q: preferred_port and remote_host are required", id)
		}
		envs[id] = p
	}
	return envs, nil
}
