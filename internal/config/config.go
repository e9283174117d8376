// Package config loads Stagehand configuration from defaults, an optional
// stagehand.yaml file, and STAGEHAND_* environment variables, in that
// order of increasing precedence.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete Stagehand configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LLMConfig configures the model endpoint.
type LLMConfig struct {
	// Model is the OpenRouter model identifier (e.g. "openai/gpt-4o").
	Model string `mapstructure:"model"`
	// BaseURL is the openai-compatible endpoint.
	BaseURL string `mapstructure:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `mapstructure:"api_key_env"`
	// TemperatureAnalysis is used for classification and parsing calls.
	TemperatureAnalysis float64 `mapstructure:"temperature_analysis"`
	// TemperatureGeneration is used for document generation calls.
	TemperatureGeneration float64 `mapstructure:"temperature_generation"`
}

// PipelineConfig controls the workflow engine.
type PipelineConfig struct {
	// MaxRetryPerStep bounds attempts for one implementation step.
	MaxRetryPerStep int `mapstructure:"max_retry_per_step"`
	// FailedThresholdPercent is the failed-step percentage above which a
	// run is classified critical_failure.
	FailedThresholdPercent float64 `mapstructure:"failed_threshold_percent"`
	// MaxReviewIterations bounds the human review loop.
	MaxReviewIterations int `mapstructure:"max_review_iterations"`
	// MaxToolTurns bounds the LLM/tool turn loop for a single step.
	MaxToolTurns int `mapstructure:"max_tool_turns"`
	// LogWindow is how many trailing execution-log entries are fed back
	// into step prompts.
	LogWindow int `mapstructure:"log_window"`
	// FlowDir is the per-project directory holding stages.
	FlowDir string `mapstructure:"flow_dir"`
}

// ScannerConfig controls the project scan phases.
type ScannerConfig struct {
	MaxFileSizeBytes int      `mapstructure:"max_file_size_bytes"`
	MaxFilesToRead   int      `mapstructure:"max_files_to_read"`
	IgnoredDirs      []string `mapstructure:"ignored_dirs"`
	IgnoredExts      []string `mapstructure:"ignored_exts"`
	PriorityFiles    []string `mapstructure:"priority_files"`
}

// MemoryConfig configures the episode memory store.
type MemoryConfig struct {
	// Path is the sqlite database path. Empty disables memory.
	Path string `mapstructure:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// Dir, when set, redirects logs from stderr to {dir}/stagehand.log.
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from stagehand.yaml in dir (optional) and the
// environment. Missing files are not an error; defaults apply.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("stagehand")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("STAGEHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching disk.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.model", "openai/gpt-4o")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.api_key_env", "OPENROUTER_API_KEY")
	v.SetDefault("llm.temperature_analysis", 0.1)
	v.SetDefault("llm.temperature_generation", 0.3)

	v.SetDefault("pipeline.max_retry_per_step", 3)
	v.SetDefault("pipeline.failed_threshold_percent", 30.0)
	v.SetDefault("pipeline.max_review_iterations", 3)
	v.SetDefault("pipeline.max_tool_turns", 25)
	v.SetDefault("pipeline.log_window", 10)
	v.SetDefault("pipeline.flow_dir", "flow")

	v.SetDefault("scanner.max_file_size_bytes", 100_000)
	v.SetDefault("scanner.max_files_to_read", 50)
	v.SetDefault("scanner.ignored_dirs", []string{
		"node_modules", ".git", "__pycache__", ".venv", "venv",
		"dist", "build", ".next", ".nuxt", "coverage", "vendor",
	})
	v.SetDefault("scanner.ignored_exts", []string{
		".pyc", ".so", ".dylib",
		".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".eot",
		".mp3", ".mp4", ".avi", ".mov",
		".zip", ".tar", ".gz", ".bz2",
	})
	v.SetDefault("scanner.priority_files", []string{
		"package.json", "requirements.txt", "pyproject.toml",
		"Cargo.toml", "go.mod", "Gemfile",
		"Dockerfile", "docker-compose.yml", "Makefile",
		"tsconfig.json", "README.md",
	})

	v.SetDefault("memory.path", "")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.dir", "")
}
