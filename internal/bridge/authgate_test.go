package bridge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/session"
)

func TestAuthGate_ChallengeNonTerminal(t *testing.T) {
	lc := session.NewLifecycle()
	require.NoError(t, lc.Begin())

	var out bytes.Buffer
	g := NewAuthGate(lc, &out)
	g.Challenge("2@abcdef")

	assert.Contains(t, out.String(), "Scan this QR code")
	assert.Contains(t, out.String(), "2@abcdef")
}

func TestAuthGate_ChallengeIgnoredWhenReady(t *testing.T) {
	lc := session.NewLifecycle()
	require.NoError(t, lc.Begin())

	var out bytes.Buffer
	g := NewAuthGate(lc, &out)
	require.True(t, g.Ready())

	g.Challenge("2@late")
	assert.Empty(t, out.String())
}

func TestAuthGate_ReadyIdempotent(t *testing.T) {
	lc := session.NewLifecycle()
	require.NoError(t, lc.Begin())

	g := NewAuthGate(lc, &bytes.Buffer{})
	assert.True(t, g.Ready())
	assert.False(t, g.Ready())
	assert.Equal(t, session.Ready, lc.State())
}

func TestAuthGate_ReadyBeforeBegin(t *testing.T) {
	lc := session.NewLifecycle()
	g := NewAuthGate(lc, &bytes.Buffer{})

	assert.False(t, g.Ready())
	assert.Equal(t, session.Uninitialized, lc.State())
}
