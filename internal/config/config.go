package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | sqlite | memory
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		// Path is the sqlite database file.
		Path string `yaml:"path"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Storage struct {
		ProjectsDir string `yaml:"projectsDir"`
		ScratchDir  string `yaml:"scratchDir"`
		MaxUploadMB int64  `yaml:"maxUploadMB"`
		MaxFileKB   int64  `yaml:"maxFileKB"`
	} `yaml:"storage"`

	Analysis struct {
		Tools             []string                 `yaml:"tools"`
		ToolTimeout       time.Duration            `yaml:"toolTimeout"`
		ToolTimeouts      map[string]time.Duration `yaml:"toolTimeouts"`
		JobTimeout        time.Duration            `yaml:"jobTimeout"`
		MaxParallelTools  int                      `yaml:"maxParallelTools"`
		MaxConcurrentJobs int                      `yaml:"maxConcurrentJobs"`
		Mode              string                   `yaml:"mode"` // local | docker
		DockerImage       string                   `yaml:"dockerImage"`
	} `yaml:"analysis"`

	AI struct {
		Provider        string        `yaml:"provider"` // openai | anthropic | heuristic | none
		APIKey          string        `yaml:"apiKey"`
		Model           string        `yaml:"model"`
		BaseURL         string        `yaml:"baseURL"`
		Timeout         time.Duration `yaml:"timeout"`
		MaxFindings     int           `yaml:"maxFindings"`
		MaxSummaryChars int           `yaml:"maxSummaryChars"`
	} `yaml:"ai"`

	Auth struct {
		// Tokens maps uid → bearer token. Empty disables authentication.
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"auth"`

	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	GitHub struct {
		Token        string        `yaml:"token"`
		AllowedHosts []string      `yaml:"allowedHosts"`
		CloneTimeout time.Duration `yaml:"cloneTimeout"`
	} `yaml:"github"`
}

// Default returns a config that runs locally without external services.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 60 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Database.Driver = "sqlite"
	c.Database.Path = "storage/review.db"
	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "review-artifacts"
	c.Storage.ProjectsDir = "storage/projects"
	c.Storage.MaxUploadMB = 50
	c.Storage.MaxFileKB = 512
	for _, t := range findings.KnownTools {
		c.Analysis.Tools = append(c.Analysis.Tools, string(t))
	}
	c.Analysis.ToolTimeout = 180 * time.Second
	c.Analysis.JobTimeout = 15 * time.Minute
	c.Analysis.MaxParallelTools = 2
	c.Analysis.MaxConcurrentJobs = 2
	c.Analysis.Mode = "local"
	c.AI.Provider = "heuristic"
	c.AI.Timeout = 60 * time.Second
	c.AI.MaxFindings = 40
	c.AI.MaxSummaryChars = 2000
	c.RateLimit.RPS = 5
	c.RateLimit.Burst = 20
	c.GitHub.AllowedHosts = []string{"github.com"}
	c.GitHub.CloneTimeout = 5 * time.Minute
	return &c
}

// Load baca file config.yaml di atas Default(), lalu override dari env.
// A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets stay out of the config file.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Database.Password, "DB_PASSWORD")
	set(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	set(&c.GitHub.Token, "GITHUB_TOKEN")
	set(&c.AI.Model, "AI_MODEL")
	switch c.AI.Provider {
	case "openai":
		set(&c.AI.APIKey, "OPENAI_API_KEY")
		set(&c.AI.Model, "OPENAI_MODEL")
	case "anthropic":
		set(&c.AI.APIKey, "ANTHROPIC_API_KEY")
	}
}

// Validate rejects unknown enum values and nonsensical limits.
func (c *Config) Validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q (allowed: mysql, postgres, sqlite, memory)", c.Database.Driver))
	}
	switch c.AI.Provider {
	case "openai", "anthropic", "heuristic", "none":
	default:
		errs = append(errs, fmt.Sprintf("ai.provider %q (allowed: openai, anthropic, heuristic, none)", c.AI.Provider))
	}
	switch c.Analysis.Mode {
	case "local", "docker":
	default:
		errs = append(errs, fmt.Sprintf("analysis.mode %q (allowed: local, docker)", c.Analysis.Mode))
	}
	if len(c.Analysis.Tools) == 0 {
		errs = append(errs, "analysis.tools is empty")
	}
	for _, t := range c.Analysis.Tools {
		if _, err := findings.ParseTool(t); err != nil {
			errs = append(errs, "analysis.tools: "+err.Error())
		}
	}
	for t := range c.Analysis.ToolTimeouts {
		if _, err := findings.ParseTool(t); err != nil {
			errs = append(errs, "analysis.toolTimeouts: "+err.Error())
		}
	}
	if c.Analysis.MaxParallelTools < 1 {
		errs = append(errs, "analysis.maxParallelTools must be >= 1")
	}
	if c.Analysis.MaxConcurrentJobs < 1 {
		errs = append(errs, "analysis.maxConcurrentJobs must be >= 1")
	}
	if c.Storage.ProjectsDir == "" {
		errs = append(errs, "storage.projectsDir is required")
	}
	if (c.AI.Provider == "openai" || c.AI.Provider == "anthropic") && c.AI.APIKey == "" {
		errs = append(errs, "ai.apiKey is required for provider "+c.AI.Provider)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tools returns the configured tools in canonical form.
func (c *Config) Tools() []findings.Tool {
	out := make([]findings.Tool, 0, len(c.Analysis.Tools))
	for _, t := range c.Analysis.Tools {
		if tool, err := findings.ParseTool(t); err == nil {
			out = append(out, tool)
		}
	}
	return out
}

// ToolTimeouts returns the per-tool overrides keyed by canonical tool.
func (c *Config) ToolTimeouts() map[findings.Tool]time.Duration {
	out := make(map[findings.Tool]time.Duration, len(c.Analysis.ToolTimeouts))
	for t, d := range c.Analysis.ToolTimeouts {
		if tool, err := findings.ParseTool(t); err == nil {
			out[tool] = d
		}
	}
	return out
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// DSN picks the connection string for the configured driver.
func (c *Config) DSN() string {
	switch c.Database.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "postgres":
		return c.PostgresDSN()
	case "sqlite":
		return c.Database.Path
	}
	return ""
}
