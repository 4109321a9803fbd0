package cli

import (
	"fmt"

	"wabridge/internal/bridge"
	"wabridge/internal/config"
	"wabridge/internal/controller"
	"wabridge/internal/session/sidecar"
	"wabridge/pkg/channel"
)

// bridgeOverrides 命令行覆盖的配置项
type bridgeOverrides struct {
	group     string
	match     string
	strategy  string
	transport string
}

func (o bridgeOverrides) apply(cfg *config.Config) {
	if o.group != "" {
		cfg.Group.ID = o.group
	}
	if o.match != "" {
		cfg.Group.Match = o.match
	}
	if o.strategy != "" {
		cfg.Forward.Strategy = o.strategy
	}
	if o.transport != "" {
		cfg.Controller.Transport = o.transport
	}
}

// bridgeOptions 由配置构造 bridge.Options
func bridgeOptions(cfg *config.Config) (bridge.Options, error) {
	filter, err := channel.NewFilter(channel.MatchMode(cfg.Group.Match), cfg.Group.ID, cfg.Group.Suffix)
	if err != nil {
		return bridge.Options{}, err
	}
	strategy, err := bridge.ParseStrategy(cfg.Forward.Strategy)
	if err != nil {
		return bridge.Options{}, err
	}

	return bridge.Options{
		Filter:      filter,
		Strategy:    strategy,
		AckMessage:  cfg.Forward.AckMessage,
		Newline:     controller.NewlinePolicy(cfg.Controller.Newline),
		QueueSize:   cfg.Dispatch.QueueSize,
		SendTimeout: cfg.Session.SendTimeout,
		AuthTimeout: cfg.Session.AuthTimeout,
	}, nil
}

// sessionOnlyOptions 用于 pair/send：没有控制器，也不需要监控群组
func sessionOnlyOptions(cfg *config.Config) (bridge.Options, error) {
	filter, err := channel.NewFilter(channel.MatchSuffix, "", cfg.Group.Suffix)
	if err != nil {
		return bridge.Options{}, err
	}
	return bridge.Options{
		Filter:      filter,
		Strategy:    bridge.StrategyForward,
		Newline:     controller.NewlineEscape,
		QueueSize:   1,
		SendTimeout: cfg.Session.SendTimeout,
		AuthTimeout: cfg.Session.AuthTimeout,
	}, nil
}

// sidecarConfig 解析 sidecar 启动参数。未配置 args 时释放内置脚本。
func sidecarConfig(cfg config.SessionConfig, sidecarDir string) (sidecar.Config, error) {
	args := cfg.Args
	if len(args) == 0 {
		path, err := sidecar.EnsureScript(sidecarDir)
		if err != nil {
			return sidecar.Config{}, fmt.Errorf("install sidecar script: %w", err)
		}
		args = []string{path}
	}
	return sidecar.Config{
		Command:  cfg.Command,
		Args:     args,
		DataDir:  cfg.DataDir,
		Headless: cfg.Headless,
	}, nil
}

func newSessionClient(cfg config.SessionConfig) (*sidecar.Client, error) {
	dir, err := config.DefaultSidecarDir()
	if err != nil {
		return nil, err
	}
	sc, err := sidecarConfig(cfg, dir)
	if err != nil {
		return nil, err
	}
	return sidecar.New(sc), nil
}
