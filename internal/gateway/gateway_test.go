package gateway

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/lorekeeper/internal/core"
	"github.com/flemzord/lorekeeper/internal/logging"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("{}"), &node); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	g := &Gateway{}
	if err := g.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.SearchLimit != 20 {
		t.Errorf("SearchLimit = %d, want 20", g.config.SearchLimit)
	}
}

func TestGateway_ValidateBadBind(t *testing.T) {
	t.Parallel()

	g := &Gateway{config: Config{Bind: "not an address"}}
	if err := g.Validate(); err == nil {
		t.Fatal("expected invalid bind error")
	}
}

func TestGateway_StartRequiresServices(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Provision(core.NewAppContext(slog.Default(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Start(); err == nil {
		_ = g.Stop(context.Background())
		t.Fatal("Start should fail without a session store")
	}
}

func TestGateway_ProvisionRegistersSecrets(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.Default(), t.TempDir())
	redactor := logging.NewRedactor()
	appCtx.RegisterService(logging.ServiceName, redactor)

	g := &Gateway{config: Config{Auth: AuthConfig{BearerToken: "gw-token-123"}}}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if got := redactor.Redact("token gw-token-123"); got != "token "+logging.Placeholder {
		t.Errorf("Redact = %q, want bearer token redacted", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad bind", mutate: func(c *Config) { c.Bind = "nowhere" }, wantErr: "invalid bind"},
		{name: "search limit", mutate: func(c *Config) { c.SearchLimit = 10_000 }, wantErr: "search_limit"},
		{name: "basic user only", mutate: func(c *Config) { c.Auth.BasicUser = "gm" }, wantErr: "set together"},
		{name: "bearer only", mutate: func(c *Config) { c.Auth.BearerToken = "secret-token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c Config
			c.defaults()
			tt.mutate(&c)
			err := c.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
