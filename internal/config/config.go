package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

const (
	BackendGitHub = "github"
	BackendGit    = "git"
	BackendBolt   = "bolt"
	BackendFS     = "fs"

	DefaultFile = "s1lag.yml"
)

type Config struct {
	FQRNs       []string     `yaml:"fqrns" toml:"fqrns"`
	Mirrors     []string     `yaml:"mirrors" toml:"mirrors"`
	MarkerPath  string       `yaml:"marker_path" toml:"marker_path"`
	Timeout     string       `yaml:"timeout" toml:"timeout"`
	Concurrency int          `yaml:"concurrency" toml:"concurrency"`
	// Interval, when set, makes a pass a no-op if the last sample is younger.
	Interval    string       `yaml:"min_interval,omitempty" toml:"min_interval,omitempty"`
	Store       StoreConfig  `yaml:"store" toml:"store"`
	Output      OutputConfig `yaml:"output" toml:"output"`

	timeout  time.Duration
	interval time.Duration
}

type StoreConfig struct {
	Backend       string       `yaml:"backend" toml:"backend"`
	Path          string       `yaml:"path" toml:"path"`
	RebaseRetries int          `yaml:"rebase_retries" toml:"rebase_retries"`
	GitHub        GitHubConfig `yaml:"github" toml:"github"`
	Git           GitConfig    `yaml:"git" toml:"git"`
	Bolt          BoltConfig   `yaml:"bolt" toml:"bolt"`
	FS            FSConfig     `yaml:"fs" toml:"fs"`
}

type GitHubConfig struct {
	Repository string `yaml:"repository" toml:"repository"` // owner/name
	Branch     string `yaml:"branch" toml:"branch"`
	Token      string `yaml:"token,omitempty" toml:"token,omitempty"`
	APIURL     string `yaml:"api_url" toml:"api_url"`
}

type GitConfig struct {
	// URL, when set, replaces Dir: the branch is fetched into memory and pushed back.
	URL         string `yaml:"url,omitempty" toml:"url,omitempty"`
	Dir         string `yaml:"dir" toml:"dir"`
	Branch      string `yaml:"branch" toml:"branch"`
	Remote      string `yaml:"remote,omitempty" toml:"remote,omitempty"`
	AuthorName  string `yaml:"author_name" toml:"author_name"`
	AuthorEmail string `yaml:"author_email" toml:"author_email"`
}

type BoltConfig struct {
	File   string `yaml:"file" toml:"file"`
	Bucket string `yaml:"bucket" toml:"bucket"`
}

type FSConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

type OutputConfig struct {
	Dir         string  `yaml:"dir" toml:"dir"`
	MetricsFile string  `yaml:"metrics_file,omitempty" toml:"metrics_file,omitempty"`
	WarnHours   float64 `yaml:"warn_hours" toml:"warn_hours"`
	CritHours   float64 `yaml:"crit_hours" toml:"crit_hours"`
}

// Default returns a starter configuration tracking one repository on the OSG Stratum-1s.
func Default() Config {
	c := Config{
		FQRNs: []string{"singularity.opensciencegrid.org"},
		Mirrors: []string{
			"http://cvmfs-s1bnl.opensciencegrid.org:8000/cvmfs",
			"http://cvmfs-s1fnal.opensciencegrid.org:8000/cvmfs",
			"http://cvmfs-stratum-one.cern.ch:8000/cvmfs",
		},
	}
	c.applyDefaults()
	return c
}

// Load reads a YAML or TOML (by extension) config file, then applies env overrides and defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.InvalidConfig, "read "+path, err)
	}

	cfg, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, errs.New(errs.InvalidConfig, "parse "+path, err)
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errs.New(errs.InvalidConfig, path, err)
	}
	return cfg, nil
}

// Parse decodes raw config bytes; ext selects TOML for ".toml" and YAML otherwise.
func Parse(raw []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Save writes the config as TOML for ".toml" paths and YAML otherwise, omitting the token.
func (c *Config) Save(path string) error {
	out := *c
	out.Store.GitHub.Token = ""
	kind := utils.FileTypeYAML
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		kind = utils.FileTypeTOML
	}
	if err := utils.CreateFile(path, &out, kind, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("GITHUB_REPOSITORY")); v != "" && c.Store.GitHub.Repository == "" {
		c.Store.GitHub.Repository = v
	}
	if v := strings.TrimSpace(getenv("GITHUB_TOKEN")); v != "" && c.Store.GitHub.Token == "" {
		c.Store.GitHub.Token = v
	}
	if v := strings.TrimSpace(getenv("S1LAG_STORE_BACKEND")); v != "" {
		c.Store.Backend = v
	}
}

func (c *Config) applyDefaults() {
	if c.MarkerPath == "" {
		c.MarkerPath = ".cvmfspublished"
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendGitHub
	}
	if c.Store.Path == "" {
		c.Store.Path = "state.json"
	}
	if c.Store.GitHub.Branch == "" {
		c.Store.GitHub.Branch = "state"
	}
	if c.Store.GitHub.APIURL == "" {
		c.Store.GitHub.APIURL = "https://api.github.com"
	}
	if c.Store.Git.Dir == "" {
		c.Store.Git.Dir = "."
	}
	if c.Store.Git.Branch == "" {
		c.Store.Git.Branch = "state"
	}
	if c.Store.Git.AuthorName == "" {
		c.Store.Git.AuthorName = "s1lag"
	}
	if c.Store.Git.AuthorEmail == "" {
		c.Store.Git.AuthorEmail = "s1lag@localhost"
	}
	if c.Store.Bolt.File == "" {
		c.Store.Bolt.File = "s1lag.db"
	}
	if c.Store.Bolt.Bucket == "" {
		c.Store.Bolt.Bucket = "records"
	}
	if c.Store.FS.Dir == "" {
		c.Store.FS.Dir = "state"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "plots"
	}
	if c.Output.WarnHours == 0 {
		c.Output.WarnHours = 2
	}
	if c.Output.CritHours == 0 {
		c.Output.CritHours = 8
	}
}

func (c *Config) validate() error {
	if len(c.FQRNs) == 0 {
		return fmt.Errorf("fqrns: at least one repository is required")
	}
	if len(c.Mirrors) == 0 {
		return fmt.Errorf("mirrors: at least one mirror is required")
	}
	for _, m := range c.Mirrors {
		u, err := url.Parse(m)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("mirrors: %q is not an absolute URL", m)
		}
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return fmt.Errorf("timeout: %q is not a positive duration", c.Timeout)
	}
	c.timeout = d
	if c.Interval != "" {
		m, err := time.ParseDuration(c.Interval)
		if err != nil || m < 0 {
			return fmt.Errorf("min_interval: %q is not a duration", c.Interval)
		}
		c.interval = m
	}
	if c.Output.CritHours < c.Output.WarnHours {
		return fmt.Errorf("output.crit_hours (%g) must not be below output.warn_hours (%g)", c.Output.CritHours, c.Output.WarnHours)
	}
	if c.Store.RebaseRetries < 0 {
		return fmt.Errorf("store.rebase_retries must be >= 0")
	}

	switch c.Store.Backend {
	case BackendGitHub:
		if _, _, err := c.Store.GitHub.OwnerRepo(); err != nil {
			return err
		}
	case BackendGit, BackendBolt, BackendFS:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	return nil
}

// FetchTimeout is the per-endpoint timeout.
func (c *Config) FetchTimeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// MinInterval is the minimum age of the last sample before a new pass runs; 0 disables it.
func (c *Config) MinInterval() time.Duration {
	if c.interval > 0 {
		return c.interval
	}
	if d, err := time.ParseDuration(c.Interval); err == nil && d > 0 {
		return d
	}
	return 0
}

// OwnerRepo splits "owner/name".
func (g GitHubConfig) OwnerRepo() (string, string, error) {
	owner, name, ok := strings.Cut(g.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("store.github.repository: want owner/name (or GITHUB_REPOSITORY), got %q", g.Repository)
	}
	return owner, name, nil
}
