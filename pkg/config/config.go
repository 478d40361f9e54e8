// Package config loads the bot's yaml configuration. Values may reference
// environment variables with ${VAR}; a .env file next to the process is
// loaded first so secrets stay out of the yaml.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dexbot/goladder/internal/ledger"
	"github.com/dexbot/goladder/internal/strategies/staggered"
	"github.com/dexbot/goladder/pkg/logger"
)

// PersistenceConfig 持久化后端选择
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // badger | json（默认 badger）
	Path    string `yaml:"path"`
}

// JournalConfig 成交/中心价记账数据库
type JournalConfig struct {
	Path string `yaml:"path"` // 为空则不记账
}

// ControlPlaneConfig 本地控制接口
type ControlPlaneConfig struct {
	Listen string `yaml:"listen"` // 为空则不启动
}

// Config 进程级配置：一个网关、一条事件流、若干 worker。
type Config struct {
	Logger       logger.Config       `yaml:"logger"`
	Persistence  PersistenceConfig   `yaml:"persistence"`
	Journal      JournalConfig       `yaml:"journal"`
	Gateway      ledger.Config       `yaml:"gateway"`
	Stream       ledger.StreamConfig `yaml:"stream"`
	ControlPlane ControlPlaneConfig  `yaml:"control_plane"`
	Workers      []staggered.Config  `yaml:"workers"`
}

// Load 读取 yaml 配置；${VAR} 先经环境变量展开。
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "badger"
	}
	if c.Persistence.Path == "" {
		c.Persistence.Path = "data/state"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Gateway.Endpoint == "" {
		return fmt.Errorf("gateway.endpoint is required")
	}
	if c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker must be configured")
	}
	seen := make(map[string]bool, len(c.Workers))
	for _, wc := range c.Workers {
		if seen[wc.Name] {
			return fmt.Errorf("duplicate worker name %q", wc.Name)
		}
		seen[wc.Name] = true
	}
	switch c.Persistence.Backend {
	case "badger", "json":
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	return nil
}
