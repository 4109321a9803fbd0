package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wabridge/internal/bridge"
	"wabridge/internal/controller"
	"wabridge/pkg/channel"
)

// NewSendCmd 创建 send 命令
func NewSendCmd() *cobra.Command {
	var req channel.SendRequest

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and exit",
		Long: `Open the saved session, wait until it is ready, send one message and exit.
The chat defaults to the monitored group (group.id).

Examples:
  wabridge send --message "deploy finished"
  wabridge send --chat-id 491701234567@c.us --message hi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			return runSend(cmd.Context(), cliCtx, req)
		},
	}

	cmd.Flags().StringVar(&req.ChatID, "chat-id", "", "target chat id (default: group.id)")
	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "message body")

	return cmd
}

// resolveSendRequest 补全并校验一次性发送请求，规则与控制器通道一致
func resolveSendRequest(req channel.SendRequest, defaultChat string) (channel.SendRequest, error) {
	if req.ChatID == "" {
		req.ChatID = defaultChat
	}
	line, err := controller.EncodeSendRequest(req)
	if err != nil {
		return channel.SendRequest{}, err
	}
	return controller.DecodeSendRequest(line)
}

func runSend(parent context.Context, cliCtx *CLIContext, req channel.SendRequest) error {
	cfg := cliCtx.Config

	req, err := resolveSendRequest(req, cfg.Group.ID)
	if err != nil {
		return err
	}

	opts, err := sessionOnlyOptions(cfg)
	if err != nil {
		return err
	}
	opts.OnReady = func(ctx context.Context, b *bridge.Bridge) error {
		if err := b.Send(ctx, req); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Sent to %s\n", req.ChatID)
		return nil
	}

	client, err := newSessionClient(cfg.Session)
	if err != nil {
		return err
	}
	b, err := bridge.New(client, nil, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return b.Run(ctx)
}
