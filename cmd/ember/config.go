package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the ember configuration file
// (~/.config/ember/config.yaml). Sampling fields are pointers so "not
// set" is distinguishable from zero values.
type Config struct {
	Model      string `yaml:"model"`
	MaxContext *int64 `yaml:"max_context"`
	Threads    *int64 `yaml:"threads"`
	GPULayers  *int64 `yaml:"gpu_layers"`

	// Sampling defaults
	Temperature   *float64 `yaml:"temperature"`
	TopK          *int64   `yaml:"top_k"`
	TopP          *float64 `yaml:"top_p"`
	RepeatPenalty *float64 `yaml:"repeat_penalty"`
	PenaltyLastN  *int64   `yaml:"penalty_last_n"`
	Seed          *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ember", "config.yaml")
}

// LoadConfig reads the config file, after loading a .env file if one is
// present so EMBER_* variables can fill gaps. Returns a zero Config
// when nothing is configured.
func LoadConfig() Config {
	_ = godotenv.Load()

	var cfg Config
	if path := configPath(); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, &cfg)
		}
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("EMBER_MODEL")
	}
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = os.Getenv("EMBER_ADDR")
	}
	return cfg
}

// applyModelConfig fills the common model flags from the config file
// when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.MaxContext != nil && !c.IsSet("max-context") {
		maxContext = *cfg.MaxContext
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		threads = *cfg.Threads
	}
	if cfg.GPULayers != nil && !c.IsSet("gpu-layers") {
		gpuLayers = *cfg.GPULayers
	}
}

// applySamplingConfig fills run command sampling variables from the
// config file.
func applySamplingConfig(c *cli.Command, cfg Config,
	temp *float64, topK *int64, topP *float64,
	repeatPenalty *float64, penaltyLastN *int64,
) {
	if cfg.Temperature != nil && !c.IsSet("temp") && !c.IsSet("temperature") && !c.IsSet("t") {
		*temp = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		*topP = *cfg.TopP
	}
	if cfg.RepeatPenalty != nil && !c.IsSet("repeat-penalty") {
		*repeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.PenaltyLastN != nil && !c.IsSet("penalty-last-n") {
		*penaltyLastN = *cfg.PenaltyLastN
	}
}
