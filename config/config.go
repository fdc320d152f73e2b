package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type ComfyConfig struct {
	BaseURL          string `toml:"base_url"`
	HealthRetries    int    `toml:"health_retries"`
	HealthDelayMs    int    `toml:"health_delay_ms"`
	SubmitTimeoutSec int    `toml:"submit_timeout_sec"`
	PollTimeoutSec   int    `toml:"poll_timeout_sec"`
	OutputNode       string `toml:"output_node"`
}

type PathsConfig struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	Workflow  string `toml:"workflow"`
	DB        string `toml:"db"`
	LogDir    string `toml:"log_dir"`
}

type TransferConfig struct {
	DownloadTimeoutSec int `toml:"download_timeout_sec"`
	UploadTimeoutSec   int `toml:"upload_timeout_sec"`
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Comfy    ComfyConfig    `toml:"comfy"`
	Paths    PathsConfig    `toml:"paths"`
	Transfer TransferConfig `toml:"transfer"`
}

var Conf Config

const configFileName = "config.toml"

// resolveConfigPath is swappable in tests.
var resolveConfigPath = func() (string, error) {
	if p := os.Getenv("MULTITALK_WORKER_CONFIG"); p != "" {
		return p, nil
	}
	return filepath.Join("config", configFileName), nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Comfy: ComfyConfig{
			BaseURL:          "http://127.0.0.1:8188",
			HealthRetries:    50,
			HealthDelayMs:    500,
			SubmitTimeoutSec: 30,
			PollTimeoutSec:   600,
			OutputNode:       "221",
		},
		Paths: PathsConfig{
			InputDir:  "input",
			OutputDir: "output",
			Workflow:  filepath.Join("workflows", "multitalk_api.json"),
			DB:        filepath.Join("data", "worker.db"),
			LogDir:    "logs",
		},
		Transfer: TransferConfig{
			DownloadTimeoutSec: 120,
			UploadTimeoutSec:   300,
		},
	}
}

// LoadOrCreateConfig loads the config file, creating it with defaults when it
// does not exist. Returns whether the file was created.
func LoadOrCreateConfig() (bool, error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return false, err
	}

	if _, err = os.Stat(configPath); os.IsNotExist(err) {
		Conf = defaultConfig()
		if err = SaveConfig(); err != nil {
			return false, err
		}
		return true, nil
	} else if err != nil {
		return false, err
	}

	Conf = defaultConfig()
	if _, err = toml.DecodeFile(configPath, &Conf); err != nil {
		return false, fmt.Errorf("cannot parse config %s: %w", configPath, err)
	}
	return false, nil
}

// SaveConfig writes Conf to the resolved config path, creating parent
// directories as needed.
func SaveConfig() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(Conf)
}

// CheckConfig validates the loaded configuration. The worker cannot run
// without an engine URL and a workflow template path.
func CheckConfig() error {
	if Conf.Comfy.BaseURL == "" {
		return fmt.Errorf("comfy.base_url is required")
	}
	if Conf.Comfy.OutputNode == "" {
		return fmt.Errorf("comfy.output_node is required")
	}
	if Conf.Paths.Workflow == "" {
		return fmt.Errorf("paths.workflow is required")
	}
	if _, err := os.Stat(Conf.Paths.Workflow); err != nil {
		return fmt.Errorf("workflow template not found at %s", Conf.Paths.Workflow)
	}
	return nil
}
