package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wabridge/internal/bridge"
	"wabridge/internal/config"
	"wabridge/internal/controller"
	"wabridge/internal/gateway"
	"wabridge/internal/gateway/websocket"
	"wabridge/internal/heartbeat"
	"wabridge/pkg/logger"
)

// NewRunCmd 创建 run 命令
func NewRunCmd() *cobra.Command {
	var o bridgeOverrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge",
		Long: `Start the WhatsApp session and relay the monitored group to the controller.

With the stdio transport the controller talks to wabridge over its stdin and
stdout; all logs and the pairing QR code go to stderr.

Examples:
  wabridge run --group 120363392877482908@g.us
  wabridge run --match suffix --strategy echo-ack
  wabridge run --transport websocket`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			return runBridge(cmd.Context(), cliCtx, o)
		},
	}

	cmd.Flags().StringVar(&o.group, "group", "", "monitored group id (overrides group.id)")
	cmd.Flags().StringVar(&o.match, "match", "", "group match mode: exact|suffix")
	cmd.Flags().StringVar(&o.strategy, "strategy", "", "forwarding strategy: forward|echo-ack")
	cmd.Flags().StringVar(&o.transport, "transport", "", "controller transport: stdio|websocket")

	return cmd
}

func runBridge(parent context.Context, cliCtx *CLIContext, o bridgeOverrides) error {
	cfg := *cliCtx.Config
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := bridgeOptions(&cfg)
	if err != nil {
		return err
	}
	client, err := newSessionClient(cfg.Session)
	if err != nil {
		return err
	}

	var (
		transport controller.Transport
		hub       *websocket.Hub
	)
	switch controller.TransportType(cfg.Controller.Transport) {
	case controller.TransportWebSocket:
		hub = websocket.NewHub()
		transport = hub
	case controller.TransportStdio, "":
		transport = controller.NewStdioTransport(cfg.Controller.MaxLineBytes)
	default:
		return fmt.Errorf("unknown controller transport %q", cfg.Controller.Transport)
	}

	b, err := bridge.New(client, transport, opts)
	if err != nil {
		return err
	}

	var hb *heartbeat.Heartbeat
	if cfg.Heartbeat.Schedule != "" {
		if hb, err = heartbeat.New(cfg.Heartbeat.Schedule, b.Status); err != nil {
			return err
		}
	}

	log := cliCtx.Log()
	log.Info().
		Str("filter", opts.Filter.String()).
		Str("strategy", string(opts.Strategy)).
		Str("transport", cfg.Controller.Transport).
		Msg("Starting bridge")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// 会话结束时一并停止网关与心跳
		defer cancel()
		return b.Run(gctx)
	})

	if cfg.Gateway.Enabled {
		srv := gateway.NewServer(cfg.Gateway, Version, b, hub)
		g.Go(func() error { return srv.Start(gctx) })
	}

	if hb != nil {
		g.Go(func() error { return hb.Run(gctx) })
	}

	if w := startConfigWatcher(cliCtx.ConfigPath); w != nil {
		defer w.Stop()
	}

	err = g.Wait()
	if errors.Is(err, bridge.ErrSessionFatal) {
		return fmt.Errorf("session ended: %w", err)
	}
	return err
}

// startConfigWatcher 监听配置文件：日志级别即时生效，其余变更提示重启
func startConfigWatcher(path string) *config.Watcher {
	log := logger.Component("config")

	w, err := config.NewWatcher(path, func(old, cur *config.Config) {
		if old.Log.Level != cur.Log.Level {
			logger.SetLevel(cur.Log.Level)
			log.Info().Str("level", cur.Log.Level).Msg("Log level changed")
		}
		if keys := config.RestartRequired(old, cur); len(keys) > 0 {
			log.Warn().Strs("sections", keys).Msg("Config changed; restart required to apply")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
		return nil
	}
	if err := w.Start(); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Config watcher not started")
		w.Stop()
		return nil
	}
	return w
}
