package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
port: 9090
plugins:
  - name: claude
    type: anthropic
    model: claude-3-5-sonnet-latest
    api_key: test-key
stores:
  - name: short-term
    type: memory
    max_threads: 100
    max_messages_per_thread: 20
  - name: durable
    type: sqlite
    path: %q
    max_threads: 100
    max_messages_per_thread: 20
handlers:
  - name: fb
    type: messenger
    system_prompt: "You are a helpful page assistant."
services:
  - webhook_path: /webhook/messenger
    store: short-term
    handler: fb
    plugin: claude
    model_timeout_seconds: 30
  - webhook_path: /webhook/messenger-durable
    store: durable
    handler: fb
    plugin: claude
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfigFile(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	return writeConfig(t, fmt.Sprintf(validConfig, dbPath))
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(validConfigFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	require.Len(t, cfg.Plugins, 1)
	require.Len(t, cfg.Stores, 2)
	require.Len(t, cfg.Handlers, 1)
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "anthropic", cfg.Plugins[0].Type)
	assert.Equal(t, 30, cfg.Services[0].ModelTimeoutSeconds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Root{
		Port: 70000,
		Plugins: []PluginConfig{
			{Name: "p", Type: "anthropic"},
			{Name: "p", Type: "gemini"},
		},
		Stores: []StoreConfig{
			{Name: "s", Type: "memory", MaxThreads: 0, MaxMessagesPerThread: 5},
		},
		Handlers: []HandlerConfig{
			{Name: "h", Type: "telegram"},
		},
		Services: []ServiceConfig{
			{WebhookPath: "/w", Store: "missing", Handler: "h", Plugin: "p"},
			{WebhookPath: "/w", Store: "s", Handler: "h", Plugin: "p"},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "port 70000")
	assert.Contains(t, msg, `duplicate plugin name "p"`)
	assert.Contains(t, msg, `unknown type "gemini"`)
	assert.Contains(t, msg, "max_threads must be at least 1")
	assert.Contains(t, msg, `unknown type "telegram"`)
	assert.Contains(t, msg, `"missing" must be the name of a store`)
	assert.Contains(t, msg, `duplicate webhook path "/w"`)
}

func TestValidate_EmptySections(t *testing.T) {
	err := (&Root{Port: 8080}).Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "at least one plugin")
	assert.Contains(t, msg, "at least one store")
	assert.Contains(t, msg, "at least one handler")
	assert.Contains(t, msg, "at least one service")
}

func TestBuild_WiresResolvedServices(t *testing.T) {
	cfg, err := Load(validConfigFile(t))
	require.NoError(t, err)

	runner, err := cfg.Build(context.Background(), slog.Default())
	require.NoError(t, err)
	require.NotNil(t, runner)

	// The resolved runner dispatches by the configured routes; a bogus
	// route is a routing error.
	_, err = runner.Dispatch(context.Background(), "/webhook/unknown", []byte(`{}`))
	assert.Error(t, err)
}

func TestBuild_RedisStoreRequiresReachableBackend(t *testing.T) {
	cfg := &Root{
		Port:    8080,
		Plugins: []PluginConfig{{Name: "p", Type: "anthropic", APIKey: "k"}},
		Stores: []StoreConfig{{
			Name: "r", Type: "redis",
			RedisURL:   "redis://127.0.0.1:1/0", // nothing listens here
			MaxThreads: 1, MaxMessagesPerThread: 1,
		}},
		Handlers: []HandlerConfig{{Name: "h", Type: "slack"}},
		Services: []ServiceConfig{{WebhookPath: "/w", Store: "r", Handler: "h", Plugin: "p"}},
	}
	require.NoError(t, cfg.Validate())

	_, err := cfg.Build(context.Background(), slog.Default())
	assert.Error(t, err)
}
