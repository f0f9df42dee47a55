package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"forge/llm"
)

// Config is the application configuration. CLI flags override whatever
// is loaded here.
type Config struct {
	LLM      llm.Config     `yaml:"llm"`
	Output   OutputConfig   `yaml:"output"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Audit    AuditConfig    `yaml:"audit"`
	History  HistoryConfig  `yaml:"history"`
}

// OutputConfig locates generated projects.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// WorkflowConfig carries the loop's tunables.
type WorkflowConfig struct {
	Iterations    int    `yaml:"iterations"`
	MinIterations int    `yaml:"min_iterations"`
	AutoStop      *bool  `yaml:"auto_stop,omitempty"`
	Testing       *bool  `yaml:"testing,omitempty"`
	Review        *bool  `yaml:"review,omitempty"`
	SecurityScan  *bool  `yaml:"security_scan,omitempty"`
	MaxTeamSize   int    `yaml:"max_team_size"`
	TestCommand   string `yaml:"test_command,omitempty"`
}

// AuditConfig controls the JSONL event log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HistoryConfig controls the run-history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		LLM: llm.Config{
			Provider: "ollama",
			Model:    "llama3:latest",
			BaseURL:  "http://localhost:11434",
		},
		Output: OutputConfig{Dir: defaultOutputDir()},
		Workflow: WorkflowConfig{
			Iterations:    3,
			MinIterations: 2,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir(), "audit.jsonl"),
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(dataDir(), "history.db"),
		},
	}
	return cfg
}

// Load reads a YAML config file, filling gaps with defaults. An empty
// path or a missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3:latest"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = defaultOutputDir()
	} else {
		cfg.Output.Dir = expandHome(cfg.Output.Dir)
	}
	if cfg.Workflow.Iterations < 1 {
		cfg.Workflow.Iterations = 3
	}
	if cfg.Workflow.MinIterations < 0 {
		cfg.Workflow.MinIterations = 2
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(dataDir(), "audit.jsonl")
	} else {
		cfg.Audit.Path = expandHome(cfg.Audit.Path)
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(dataDir(), "history.db")
	} else {
		cfg.History.DBPath = expandHome(cfg.History.DBPath)
	}

	return cfg, nil
}

// defaultOutputDir honors FORGE_OUTPUT before falling back to the
// conventional relative directory.
func defaultOutputDir() string {
	if dir := os.Getenv("FORGE_OUTPUT"); dir != "" {
		return expandHome(dir)
	}
	return "./generated_projects"
}

// dataDir is where engine-owned state lives, well away from any project
// directory.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forge"
	}
	return filepath.Join(home, ".forge")
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(home, path[2:])
	}
	return path
}
