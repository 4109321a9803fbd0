package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 是应用配置的根结构体
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Group      GroupConfig      `mapstructure:"group" yaml:"group"`
	Forward    ForwardConfig    `mapstructure:"forward" yaml:"forward"`
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch" yaml:"dispatch"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat" yaml:"heartbeat"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// GroupConfig 监控群组配置
// exact 与 suffix 两种匹配模式互斥，只能选其一
type GroupConfig struct {
	ID     string `mapstructure:"id" yaml:"id"`
	Match  string `mapstructure:"match" yaml:"match"`   // exact, suffix
	Suffix string `mapstructure:"suffix" yaml:"suffix"` // suffix 模式使用，默认 @g.us
}

// ForwardConfig 转发策略配置
type ForwardConfig struct {
	Strategy   string `mapstructure:"strategy" yaml:"strategy"` // forward, echo-ack
	AckMessage string `mapstructure:"ack_message" yaml:"ack_message"`
}

// ControllerConfig 控制器通道配置
type ControllerConfig struct {
	Transport    string `mapstructure:"transport" yaml:"transport"` // stdio, websocket
	Newline      string `mapstructure:"newline" yaml:"newline"`     // escape, reject
	MaxLineBytes int    `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
}

// DispatchConfig 发送队列配置
type DispatchConfig struct {
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// SessionConfig 会话客户端（sidecar 进程）配置
type SessionConfig struct {
	Command     string        `mapstructure:"command" yaml:"command"`
	Args        []string      `mapstructure:"args" yaml:"args,omitempty"` // 为空时使用内置脚本
	DataDir     string        `mapstructure:"data_dir" yaml:"data_dir"`
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	AuthTimeout time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"` // 0 表示一直等待
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"` // 0 表示不超时
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// Addr 返回监听地址
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// HeartbeatConfig 心跳日志配置
type HeartbeatConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"` // cron 表达式，空表示关闭
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	// 设置默认值
	SetDefaults()

	// 设置环境变量前缀
	viper.SetEnvPrefix("WABRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 如果提供了配置路径，则加载配置文件
	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	cfg, err := unmarshal()
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// caller holds mu
func unmarshal() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Session.DataDir != "" {
		dir, err := ExpandPath(cfg.Session.DataDir)
		if err != nil {
			return nil, err
		}
		cfg.Session.DataDir = dir
	}
	return &cfg, nil
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path 返回当前加载的配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// GetString 获取字符串配置值
func GetString(key string) string {
	return viper.GetString(key)
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	// 如果有配置文件路径，则持久化
	if configPath != "" {
		return save()
	}
	return nil
}

// Save 保存配置到文件
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Marshal 将配置序列化为 YAML
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	// yaml.v3 would print durations as integers
	type sessionYAML struct {
		Command     string   `yaml:"command"`
		Args        []string `yaml:"args,omitempty"`
		DataDir     string   `yaml:"data_dir"`
		Headless    bool     `yaml:"headless"`
		AuthTimeout string   `yaml:"auth_timeout"`
		SendTimeout string   `yaml:"send_timeout"`
	}
	doc := struct {
		Log        LogConfig        `yaml:"log"`
		Group      GroupConfig      `yaml:"group"`
		Forward    ForwardConfig    `yaml:"forward"`
		Controller ControllerConfig `yaml:"controller"`
		Dispatch   DispatchConfig   `yaml:"dispatch"`
		Session    sessionYAML      `yaml:"session"`
		Gateway    GatewayConfig    `yaml:"gateway"`
		Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	}{
		Log:        out.Log,
		Group:      out.Group,
		Forward:    out.Forward,
		Controller: out.Controller,
		Dispatch:   out.Dispatch,
		Session: sessionYAML{
			Command:     out.Session.Command,
			Args:        out.Session.Args,
			DataDir:     out.Session.DataDir,
			Headless:    out.Session.Headless,
			AuthTimeout: out.Session.AuthTimeout.String(),
			SendTimeout: out.Session.SendTimeout.String(),
		},
		Gateway:   out.Gateway,
		Heartbeat: out.Heartbeat,
	}
	return yaml.Marshal(doc)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// SetTestConfig 设置全局配置（仅用于测试）
func SetTestConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
