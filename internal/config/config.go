// Package config loads the daemon's configuration: the minimal CLI surface
// (spec §6) and the playdar.conf JSON file it points at.
//
// Grounded on original_source/src/main.cpp's find_config_dir, name
// autodetection, and config directory/file resolution, translated from
// Boost.Filesystem/program_options to the standard library — the pack
// shows no richer CLI framework used for a surface this small.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/playdar/playdar/internal/errors"
)

// placeholderName is the config template's default, which triggers hostname
// autodetection (original_source/src/main.cpp: conf.name() == "YOURNAMEHERE").
const placeholderName = "YOURNAMEHERE"

const (
	DefaultHTTPPort   = 8888
	DefaultListenIP   = "239.255.0.1"
	DefaultListenPort = 60210
	DefaultNumCopies  = 1
)

// Endpoint mirrors lan.cpp's setup_endpoints shape: a bare host (using the
// LAN resolver's default port) or an explicit [host, port] pair.
type Endpoint struct {
	Host string
	Port int
}

// rawEndpoint decodes either a JSON string or a [host, port] array,
// matching the original's tolerant parsing of the "endpoints" key.
type rawEndpoint struct {
	host string
	port int
}

func (e *rawEndpoint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.host = s
		return nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) == 0 {
		return fmt.Errorf("endpoint entry must be a string or [host, port] array")
	}
	if err := json.Unmarshal(pair[0], &e.host); err != nil {
		return fmt.Errorf("endpoint host must be a string: %w", err)
	}
	if len(pair) > 1 {
		_ = json.Unmarshal(pair[1], &e.port)
	}
	return nil
}

// Config is the parsed playdar.conf, plus the CLI-selected directory it
// was loaded from. Unknown JSON keys are tolerated, per spec §6.
type Config struct {
	Name         string
	HTTPPort     int
	HTTPThreads  int
	Endpoints    []Endpoint
	ListenIP     string
	ListenPort   int
	NumCopies    int
	ConfigDir    string
	configFile   string
	solveThresh  float64
	queryTTLMins int
}

// fileShape is the on-disk JSON shape (spec §6's recognised keys).
type fileShape struct {
	Name        string        `json:"name"`
	HTTPPort    int           `json:"http_port"`
	HTTPThreads int           `json:"http_threads"`
	Endpoints   []rawEndpoint `json:"endpoints"`
	ListenIP    string        `json:"listenip"`
	ListenPort  int           `json:"listenport"`
	NumCopies   int           `json:"numcopies"`
}

// CLI holds the parsed command-line flags (spec §6).
type CLI struct {
	ConfigDir   string
	ShowVersion bool
	ShowHelp    bool
}

// ParseFlags parses the minimal CLI surface from args (excluding argv[0]).
func ParseFlags(args []string) (CLI, error) {
	fs := flag.NewFlagSet("playdard", flag.ContinueOnError)
	var cli CLI
	fs.StringVar(&cli.ConfigDir, "config", "", "use specified config directory")
	fs.StringVar(&cli.ConfigDir, "c", "", "use specified config directory (shorthand)")
	fs.BoolVar(&cli.ShowVersion, "version", false, "print version information")
	fs.BoolVar(&cli.ShowVersion, "v", false, "print version information (shorthand)")
	fs.BoolVar(&cli.ShowHelp, "help", false, "print this message")
	fs.BoolVar(&cli.ShowHelp, "h", false, "print this message (shorthand)")
	if err := fs.Parse(args); err != nil {
		return cli, err
	}
	return cli, nil
}

// FindConfigDir resolves the config directory when --config is omitted:
// $XDG_CONFIG_HOME/playdar, else $HOME/.config/playdar on Unix, or
// $HOME/Library/Preferences/playdar on macOS (spec §6).
func FindConfigDir() (string, error) {
	if runtime.GOOS == "darwin" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", &errors.ConfigError{Message: "$HOME not set"}
		}
		return filepath.Join(home, "Library", "Preferences", "playdar"), nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else if home := os.Getenv("HOME"); home != "" {
		base = filepath.Join(home, ".config")
	} else {
		return "", &errors.ConfigError{Message: "$HOME or $XDG_CONFIG_HOME not set"}
	}

	candidate := filepath.Join(base, "playdar")
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate, nil
	}
	if info, err := os.Stat("/etc/playdar"); err == nil && info.IsDir() {
		return "/etc/playdar", nil
	}
	return candidate, nil
}

// Load reads playdar.conf from dir, applying spec §6/SPEC_FULL.md defaults
// and the name-autodetection fallback. A missing directory or file is a
// fatal ConfigError (spec §7 — the one error class fatal at startup).
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &errors.ConfigError{Path: dir, Message: "config directory not found", Err: err}
	}

	file := filepath.Join(dir, "playdar.conf")
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, &errors.ConfigError{Path: file, Message: "config file not found", Err: err}
	}

	var raw fileShape
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &errors.ConfigError{Path: file, Message: "malformed JSON", Err: err}
	}

	cfg := &Config{
		Name:         raw.Name,
		HTTPPort:     orDefault(raw.HTTPPort, DefaultHTTPPort),
		HTTPThreads:  orDefault(raw.HTTPThreads, runtime.NumCPU()+1),
		ListenIP:     orDefaultStr(raw.ListenIP, DefaultListenIP),
		ListenPort:   orDefault(raw.ListenPort, DefaultListenPort),
		NumCopies:    orDefault(raw.NumCopies, DefaultNumCopies),
		ConfigDir:    dir,
		configFile:   file,
		solveThresh:  1.0,
		queryTTLMins: 20,
	}
	for _, ep := range raw.Endpoints {
		cfg.Endpoints = append(cfg.Endpoints, Endpoint{Host: ep.host, Port: ep.port})
	}

	if cfg.Name == "" || cfg.Name == placeholderName {
		cfg.Name = autodetectName()
	}

	return cfg, nil
}

// autodetectName mirrors the original's fallback when "name" is unset or
// left at the template placeholder.
func autodetectName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "playdar-node"
	}
	return h
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// SolveThreshold is the score at which a query is considered solved (spec
// §3), default 1.0. Not presently an overridable config key — spec §6
// lists no such key — but exposed for internal/platform to thread through.
func (c *Config) SolveThreshold() float64 { return c.solveThresh }

// QueryTTLMinutes is the reaper's eviction age for live query records, in
// minutes (spec §4.B), default 20 (spec §5).
func (c *Config) QueryTTLMinutes() int { return c.queryTTLMins }
