// Package config loads the server configuration from a YAML file, with
// secrets overridable from the environment or a .env file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"

	"ImageInsightServer/auth"
	"ImageInsightServer/detection"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Server struct {
	HTTPPort    int `yaml:"httpPort"`
	RPCPort     int `yaml:"RPCPort"`
	MonitorPort int `yaml:"monitorPort"`
}

type Log struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Model struct {
	WeightsPath   string  `yaml:"weightsPath"`
	ConfigPath    string  `yaml:"configPath"`
	NamesPath     string  `yaml:"namesPath"`
	InputSize     int     `yaml:"inputSize"`
	WorkersNum    int     `yaml:"workersNum"`
	ConfThreshold float32 `yaml:"confThreshold"`
	NMSThreshold  float32 `yaml:"nmsThreshold"`
	ScoreOffset   int     `yaml:"scoreOffset"`
}

type Remote struct {
	CaptionURL      string `yaml:"captionURL"`
	TranslateURL    string `yaml:"translateURL"`
	TranslateAPIKey string `yaml:"translateAPIKey"`
	TargetLanguage  string `yaml:"targetLanguage"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
}

type Argon2 struct {
	Time      uint32 `yaml:"time"`
	MemoryKiB uint32 `yaml:"memoryKiB"`
	Threads   uint8  `yaml:"threads"`
}

type Auth struct {
	SigningKey string `yaml:"signingKey"`
	// PasswordSalt is base64 (standard encoding).
	PasswordSalt string `yaml:"passwordSalt"`
	Argon2       Argon2 `yaml:"argon2"`
}

type Config struct {
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
	Store  Store  `yaml:"store"`
	Model  Model  `yaml:"model"`
	Remote Remote `yaml:"remote"`
	Auth   Auth   `yaml:"auth"`
}

// Load reads path, loads .env from the working directory when present,
// applies environment overrides and fills in defaults. It does not validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, then applies environment overrides and
// defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SIGNING_KEY"); v != "" {
		c.Auth.SigningKey = v
	}
	if v := os.Getenv("PASSWORD_SALT"); v != "" {
		c.Auth.PasswordSalt = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT %q: %w", v, err)
		}
		c.Server.HTTPPort = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.RPCPort == 0 {
		c.Server.RPCPort = 50051
	}
	if c.Server.MonitorPort == 0 {
		c.Server.MonitorPort = 9090
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "production"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "insight.db"
	}
	if c.Model.InputSize == 0 {
		c.Model.InputSize = detection.DefaultInputSize
	}
	if c.Model.ConfThreshold == 0 {
		c.Model.ConfThreshold = detection.DefaultConfThreshold
	}
	if c.Model.NMSThreshold == 0 {
		c.Model.NMSThreshold = detection.DefaultNMSThreshold
	}
	if c.Model.ScoreOffset == 0 {
		c.Model.ScoreOffset = detection.DefaultScoreOffset
	}
	if c.Remote.TargetLanguage == "" {
		c.Remote.TargetLanguage = "pt"
	}
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = 30
	}
	if c.Auth.Argon2.Time == 0 {
		c.Auth.Argon2.Time = 3
	}
	if c.Auth.Argon2.MemoryKiB == 0 {
		c.Auth.Argon2.MemoryKiB = 64 * 1024
	}
	if c.Auth.Argon2.Threads == 0 {
		c.Auth.Argon2.Threads = 2
	}
}

// Validate rejects configurations the server cannot start with. An invalid
// workersNum is clamped to 1 with a warning instead.
func (c *Config) Validate(log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if len(c.Auth.SigningKey) < auth.MinSigningKeyLength {
		return fmt.Errorf("signing key must be at least %d bytes (set auth.signingKey or SIGNING_KEY)", auth.MinSigningKeyLength)
	}
	salt, err := c.Salt()
	if err != nil {
		return err
	}
	if len(salt) < auth.MinSaltLength {
		return fmt.Errorf("password salt must decode to at least %d bytes (set auth.passwordSalt or PASSWORD_SALT)", auth.MinSaltLength)
	}
	if !inUnitInterval(c.Model.ConfThreshold) {
		return fmt.Errorf("confThreshold must be between 0 and 1, got %v", c.Model.ConfThreshold)
	}
	if !inUnitInterval(c.Model.NMSThreshold) {
		return fmt.Errorf("nmsThreshold must be between 0 and 1, got %v", c.Model.NMSThreshold)
	}
	if c.Model.ScoreOffset < 4 {
		return fmt.Errorf("scoreOffset must be at least 4, got %d", c.Model.ScoreOffset)
	}
	if c.Remote.CaptionURL == "" {
		return errors.New("remote.captionURL is required")
	}

	cpuNum := runtime.NumCPU()
	if c.Model.WorkersNum <= 0 {
		log.Warn("invalid workersNum in config, defaulting to 1", zap.Int("workersNum", c.Model.WorkersNum))
		c.Model.WorkersNum = 1
	} else if c.Model.WorkersNum > cpuNum {
		log.Warn("workersNum exceeds CPU cores, which may degrade performance",
			zap.Int("workersNum", c.Model.WorkersNum),
			zap.Int("cpuCores", cpuNum))
	}
	return nil
}

// Salt decodes the configured password salt.
func (c *Config) Salt() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(c.Auth.PasswordSalt)
	if err != nil {
		return nil, fmt.Errorf("password salt is not valid base64: %w", err)
	}
	return salt, nil
}

func inUnitInterval(v float32) bool {
	return v > 0 && v < 1
}
