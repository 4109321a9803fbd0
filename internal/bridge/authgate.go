package bridge

import (
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"wabridge/internal/session"
	"wabridge/pkg/logger"
)

// AuthGate shows pairing challenges to the operator and moves the session
// to Ready. It never blocks the rest of the bridge.
type AuthGate struct {
	lifecycle *session.Lifecycle
	out       io.Writer
	halfBlock bool
	log       zerolog.Logger
}

// NewAuthGate creates a gate that renders challenges to out. A QR code is
// drawn only when out is a terminal; otherwise the raw payload is printed
// so it can be piped into another renderer.
func NewAuthGate(lc *session.Lifecycle, out io.Writer) *AuthGate {
	if out == nil {
		out = os.Stderr
	}
	return &AuthGate{
		lifecycle: lc,
		out:       out,
		halfBlock: isTerminal(out),
		log:       *logger.Component("auth"),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Challenge renders one pairing payload. The session client rotates the
// payload periodically, so this is called repeatedly until pairing.
func (g *AuthGate) Challenge(payload string) {
	if g.lifecycle.State() != session.AwaitingAuth {
		g.log.Debug().Str("state", g.lifecycle.State().String()).Msg("Ignoring pairing challenge")
		return
	}

	g.log.Info().Msg("Pairing required")
	fmt.Fprintln(g.out, "Scan this QR code with WhatsApp to connect")
	if g.halfBlock {
		qrterminal.GenerateHalfBlock(payload, qrterminal.L, g.out)
		return
	}
	fmt.Fprintln(g.out, payload)
}

// Authenticated records that credentials were accepted. Ready follows.
func (g *AuthGate) Authenticated() {
	g.log.Info().Msg("Authenticated")
}

// Ready moves the session to Ready. It reports whether the state changed;
// a repeated ready signal is ignored.
func (g *AuthGate) Ready() bool {
	changed, err := g.lifecycle.MarkReady()
	if err != nil {
		g.log.Warn().Err(err).Msg("Ready signal ignored")
		return false
	}
	if !changed {
		g.log.Debug().Msg("Duplicate ready signal")
		return false
	}
	g.log.Info().Msg("Client is ready")
	return true
}
