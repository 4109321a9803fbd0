package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/bridge"
	"wabridge/internal/config"
	"wabridge/internal/controller"
	"wabridge/internal/session/sidecar"
	"wabridge/pkg/channel"
)

const testGroup = "120363392877482908@g.us"

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.Reset)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testConfig() *config.Config {
	return &config.Config{
		Group:      config.GroupConfig{ID: testGroup, Match: "exact", Suffix: "@g.us"},
		Forward:    config.ForwardConfig{Strategy: "forward", AckMessage: bridge.DefaultAckMessage},
		Controller: config.ControllerConfig{Transport: "stdio", Newline: "escape", MaxLineBytes: 1024},
		Dispatch:   config.DispatchConfig{QueueSize: 8},
		Session: config.SessionConfig{
			Command:     "node",
			DataDir:     "/tmp/wabridge-session",
			Headless:    true,
			SendTimeout: 5 * time.Second,
		},
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := executeRoot(t, "version", "--json")
	require.NoError(t, err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestBridgeOverrides_Apply(t *testing.T) {
	cfg := testConfig()
	bridgeOverrides{match: "suffix", strategy: "echo-ack", transport: "websocket"}.apply(cfg)

	assert.Equal(t, testGroup, cfg.Group.ID, "empty override keeps the configured group")
	assert.Equal(t, "suffix", cfg.Group.Match)
	assert.Equal(t, "echo-ack", cfg.Forward.Strategy)
	assert.Equal(t, "websocket", cfg.Controller.Transport)

	bridgeOverrides{group: "other@g.us"}.apply(cfg)
	assert.Equal(t, "other@g.us", cfg.Group.ID)
}

func TestBridgeOptions(t *testing.T) {
	opts, err := bridgeOptions(testConfig())
	require.NoError(t, err)

	assert.Equal(t, channel.MatchExact, opts.Filter.Mode)
	assert.True(t, opts.Filter.Match(testGroup))
	assert.Equal(t, bridge.StrategyForward, opts.Strategy)
	assert.Equal(t, controller.NewlineEscape, opts.Newline)
	assert.Equal(t, 8, opts.QueueSize)
	assert.Equal(t, 5*time.Second, opts.SendTimeout)
}

func TestBridgeOptions_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"exact without group", func(c *config.Config) { c.Group.ID = "" }},
		{"unknown match", func(c *config.Config) { c.Group.Match = "regex" }},
		{"unknown strategy", func(c *config.Config) { c.Forward.Strategy = "broadcast" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := bridgeOptions(cfg)
			assert.Error(t, err)
		})
	}
}

func TestSessionOnlyOptions_NoGroupNeeded(t *testing.T) {
	cfg := testConfig()
	cfg.Group.ID = ""

	opts, err := sessionOnlyOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, channel.MatchSuffix, opts.Filter.Mode)
	assert.Equal(t, bridge.StrategyForward, opts.Strategy)
}

func TestSidecarConfig(t *testing.T) {
	t.Run("installs embedded script", func(t *testing.T) {
		dir := t.TempDir()
		sc, err := sidecarConfig(testConfig().Session, dir)
		require.NoError(t, err)

		want := filepath.Join(dir, sidecar.ScriptName)
		assert.Equal(t, []string{want}, sc.Args)
		assert.FileExists(t, want)
		assert.Equal(t, "/tmp/wabridge-session", sc.DataDir)
		assert.True(t, sc.Headless)
	})

	t.Run("custom args kept", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testConfig().Session
		cfg.Args = []string{"/opt/sidecar/index.js"}

		sc, err := sidecarConfig(cfg, dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"/opt/sidecar/index.js"}, sc.Args)
		assert.NoFileExists(t, filepath.Join(dir, sidecar.ScriptName))
	})
}

func TestResolveSendRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     channel.SendRequest
		want    channel.SendRequest
		wantErr bool
	}{
		{
			name: "defaults to monitored group",
			req:  channel.SendRequest{Message: "hi"},
			want: channel.SendRequest{ChatID: testGroup, Message: "hi"},
		},
		{
			name: "explicit chat",
			req:  channel.SendRequest{ChatID: "491701234567@c.us", Message: "hi"},
			want: channel.SendRequest{ChatID: "491701234567@c.us", Message: "hi"},
		},
		{
			name:    "empty message",
			req:     channel.SendRequest{ChatID: testGroup},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSendRequest(tt.req, testGroup)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := resolveSendRequest(channel.SendRequest{Message: "hi"}, "")
	assert.Error(t, err, "no chat and no monitored group")
}

func TestCheckNodeVersion(t *testing.T) {
	tests := []struct {
		output string
		status string
	}{
		{"v18.19.0\n", "ok"},
		{"v22.3.0", "ok"},
		{"v16.20.2\n", "error"},
		{"not a version", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.status, checkNodeVersion(tt.output).status)
		})
	}
}

func TestCheckSessionData(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "ok", checkSessionData(dir).status)
	assert.Equal(t, "warning", checkSessionData(filepath.Join(dir, "missing")).status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	assert.Equal(t, "error", checkSessionData(file).status)
}

func TestCheckConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.Equal(t, "warning", checkConfig(path, testConfig()).status)

	require.NoError(t, config.SaveTo(testConfig(), path))
	assert.Equal(t, "ok", checkConfig(path, testConfig()).status)

	bad := testConfig()
	bad.Forward.Strategy = "broadcast"
	assert.Equal(t, "error", checkConfig(path, bad).status)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := executeRoot(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = executeRoot(t, "--config", path, "config", "init")
	assert.Error(t, err, "existing file without --force")

	_, err = executeRoot(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = executeRoot(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "strategy: forward")
	assert.Contains(t, out, "transport: stdio")
}

func TestConfigSetAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := executeRoot(t, "--config", path, "config", "set", "group.id", testGroup)
	require.NoError(t, err)

	out, err := executeRoot(t, "--config", path, "config", "get", "group.id")
	require.NoError(t, err)
	assert.Equal(t, testGroup+"\n", out)

	_, err = executeRoot(t, "--config", path, "config", "get", "no.such.key")
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out, err := executeRoot(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestFlattenSettings(t *testing.T) {
	keys := flattenSettings("", map[string]any{
		"group": map[string]any{"id": "x", "match": "exact"},
		"log":   map[string]any{"level": "info"},
	})
	assert.ElementsMatch(t, []string{"group.id", "group.match", "log.level"}, keys)
}
