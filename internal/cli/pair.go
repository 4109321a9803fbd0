package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wabridge/internal/bridge"
)

// NewPairCmd 创建 pair 命令
func NewPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Pair a WhatsApp account and save the session",
		Long: `Start the session, show the pairing QR code until the account is linked,
then exit. Later runs reuse the saved session from session.data_dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			return runPair(cmd.Context(), cliCtx)
		},
	}
}

func runPair(parent context.Context, cliCtx *CLIContext) error {
	cfg := cliCtx.Config

	opts, err := sessionOnlyOptions(cfg)
	if err != nil {
		return err
	}
	opts.OnReady = func(ctx context.Context, b *bridge.Bridge) error {
		fmt.Fprintf(os.Stderr, "Session ready. Saved under %s\n", cfg.Session.DataDir)
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
