// Package config loads and validates the bridge configuration and wires the
// named plugins, stores, and handlers into runnable services.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tobyrush/chatbridge/internal/bridge"
	"github.com/tobyrush/chatbridge/internal/llm"
	"github.com/tobyrush/chatbridge/internal/message"
	"github.com/tobyrush/chatbridge/internal/platform"
	"github.com/tobyrush/chatbridge/internal/store"
)

const defaultPort = 8080

// Root is the full process configuration: named component definitions plus
// the services that reference them.
type Root struct {
	Port     int             `mapstructure:"port"`
	Plugins  []PluginConfig  `mapstructure:"plugins"`
	Stores   []StoreConfig   `mapstructure:"stores"`
	Handlers []HandlerConfig `mapstructure:"handlers"`
	Services []ServiceConfig `mapstructure:"services"`
}

// PluginConfig defines one model backend.
type PluginConfig struct {
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"` // "anthropic" or "openai"
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// StoreConfig defines one conversation store.
type StoreConfig struct {
	Name                 string `mapstructure:"name"`
	Type                 string `mapstructure:"type"` // "memory", "redis", or "sqlite"
	MaxThreads           int    `mapstructure:"max_threads"`
	MaxMessagesPerThread int    `mapstructure:"max_messages_per_thread"`
	RedisURL             string `mapstructure:"redis_url"`
	Path                 string `mapstructure:"path"`
}

// HandlerConfig defines one platform handler.
type HandlerConfig struct {
	Name         string   `mapstructure:"name"`
	Type         string   `mapstructure:"type"` // "messenger" or "slack"
	SystemPrompt string   `mapstructure:"system_prompt"`
	AllowFrom    []string `mapstructure:"allow_from"`
}

// ServiceConfig binds one store, handler, and plugin to a webhook route.
type ServiceConfig struct {
	WebhookPath         string `mapstructure:"webhook_path"`
	Store               string `mapstructure:"store"`
	Handler             string `mapstructure:"handler"`
	Plugin              string `mapstructure:"plugin"`
	ModelTimeoutSeconds int    `mapstructure:"model_timeout_seconds"`
}

// Load reads the configuration file, applies CHATBRIDGE_ environment
// overrides, and validates the result.
func Load(path string) (*Root, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CHATBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("port", defaultPort)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole configuration, collecting every problem into one
// error so an operator fixes a broken file in one pass.
func (c *Root) Validate() error {
	var errs []string

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d must be between 0 and 65535", c.Port))
	}
	if len(c.Plugins) == 0 {
		errs = append(errs, "at least one plugin must be defined")
	}
	if len(c.Stores) == 0 {
		errs = append(errs, "at least one store must be defined")
	}
	if len(c.Handlers) == 0 {
		errs = append(errs, "at least one handler must be defined")
	}
	if len(c.Services) == 0 {
		errs = append(errs, "at least one service must be defined")
	}

	plugins := map[string]bool{}
	for _, p := range c.Plugins {
		if p.Name == "" {
			errs = append(errs, "plugin with empty name")
			continue
		}
		if plugins[p.Name] {
			errs = append(errs, fmt.Sprintf("duplicate plugin name %q", p.Name))
		}
		plugins[p.Name] = true
		switch p.Type {
		case "anthropic", "openai":
		default:
			errs = append(errs, fmt.Sprintf("plugin %q has unknown type %q", p.Name, p.Type))
		}
	}

	stores := map[string]bool{}
	for _, s := range c.Stores {
		if s.Name == "" {
			errs = append(errs, "store with empty name")
			continue
		}
		if stores[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate store name %q", s.Name))
		}
		stores[s.Name] = true
		switch s.Type {
		case "memory", "redis", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store %q has unknown type %q", s.Name, s.Type))
		}
		if s.MaxThreads < 1 {
			errs = append(errs, fmt.Sprintf("store %q: max_threads must be at least 1", s.Name))
		}
		if s.MaxMessagesPerThread < 1 {
			errs = append(errs, fmt.Sprintf("store %q: max_messages_per_thread must be at least 1", s.Name))
		}
		if s.Type == "redis" && s.RedisURL == "" {
			errs = append(errs, fmt.Sprintf("store %q: redis_url is required", s.Name))
		}
		if s.Type == "sqlite" && s.Path == "" {
			errs = append(errs, fmt.Sprintf("store %q: path is required", s.Name))
		}
	}

	handlers := map[string]bool{}
	for _, h := range c.Handlers {
		if h.Name == "" {
			errs = append(errs, "handler with empty name")
			continue
		}
		if handlers[h.Name] {
			errs = append(errs, fmt.Sprintf("duplicate handler name %q", h.Name))
		}
		handlers[h.Name] = true
		switch h.Type {
		case "messenger", "slack":
		default:
			errs = append(errs, fmt.Sprintf("handler %q has unknown type %q", h.Name, h.Type))
		}
	}

	routes := map[string]bool{}
	for _, s := range c.Services {
		if s.WebhookPath == "" {
			errs = append(errs, "service with empty webhook_path")
			continue
		}
		if routes[s.WebhookPath] {
			errs = append(errs, fmt.Sprintf("duplicate webhook path %q", s.WebhookPath))
		}
		routes[s.WebhookPath] = true
		if !plugins[s.Plugin] {
			errs = append(errs, fmt.Sprintf("service %q: %q must be the name of a plugin", s.WebhookPath, s.Plugin))
		}
		if !stores[s.Store] {
			errs = append(errs, fmt.Sprintf("service %q: %q must be the name of a store", s.WebhookPath, s.Store))
		}
		if !handlers[s.Handler] {
			errs = append(errs, fmt.Sprintf("service %q: %q must be the name of a handler", s.WebhookPath, s.Handler))
		}
		if s.ModelTimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("service %q: model_timeout_seconds must not be negative", s.WebhookPath))
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// Build constructs every named component and hands the resolved services to
// a ServicesRunner. Components are built once and shared by every service
// that names them.
func (c *Root) Build(ctx context.Context, logger *slog.Logger) (*bridge.ServicesRunner, error) {
	stores := make(map[string]store.ChatStore, len(c.Stores))
	for _, sc := range c.Stores {
		s, err := buildStore(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("store %q: %w", sc.Name, err)
		}
		stores[sc.Name] = s
	}

	handlers := make(map[string]message.Handler, len(c.Handlers))
	for _, hc := range c.Handlers {
		h, err := buildHandler(hc)
		if err != nil {
			return nil, fmt.Errorf("handler %q: %w", hc.Name, err)
		}
		handlers[hc.Name] = h
	}

	plugins := make(map[string]llm.Plugin, len(c.Plugins))
	for _, pc := range c.Plugins {
		p, err := buildPlugin(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", pc.Name, err)
		}
		plugins[pc.Name] = p
	}

	services := make([]*bridge.Service, 0, len(c.Services))
	for _, sc := range c.Services {
		svc := bridge.NewService(
			sc.WebhookPath,
			stores[sc.Store],
			handlers[sc.Handler],
			plugins[sc.Plugin],
			time.Duration(sc.ModelTimeoutSeconds)*time.Second,
			logger,
		)
		services = append(services, svc)
	}

	return bridge.NewServicesRunner(c.Port, logger, services...)
}

func buildStore(ctx context.Context, sc StoreConfig) (store.ChatStore, error) {
	switch sc.Type {
	case "memory":
		return store.NewMemoryStore(sc.MaxThreads, sc.MaxMessagesPerThread)
	case "redis":
		return store.OpenRedisStore(ctx, sc.RedisURL, sc.MaxThreads, sc.MaxMessagesPerThread)
	case "sqlite":
		return store.OpenSQLiteStore(sc.Path, sc.MaxThreads, sc.MaxMessagesPerThread)
	default:
		return nil, fmt.Errorf("unknown store type %q", sc.Type)
	}
}

func buildHandler(hc HandlerConfig) (message.Handler, error) {
	switch hc.Type {
	case "messenger":
		return platform.NewMessengerHandler(hc.SystemPrompt, hc.AllowFrom), nil
	case "slack":
		return platform.NewSlackHandler(hc.SystemPrompt, hc.AllowFrom), nil
	default:
		return nil, fmt.Errorf("unknown handler type %q", hc.Type)
	}
}

func buildPlugin(pc PluginConfig, logger *slog.Logger) (llm.Plugin, error) {
	apiKey := pc.APIKey
	switch pc.Type {
	case "anthropic":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("api_key or ANTHROPIC_API_KEY is required")
		}
		return llm.NewAnthropicPlugin(apiKey, pc.Model, logger), nil
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("api_key or OPENAI_API_KEY is required")
		}
		return llm.NewOpenAIPlugin(apiKey, pc.Model, logger)
	default:
		return nil, fmt.Errorf("unknown plugin type %q", pc.Type)
	}
}
