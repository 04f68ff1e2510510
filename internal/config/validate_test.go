package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/lorekeeper/internal/core"
)

type stubModule struct{ id core.ModuleID }

func (m stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: m.id, New: func() core.Module { return m }}
}

// The registry is process-global, so stubs use ids no real module takes.
func init() {
	for _, id := range []core.ModuleID{"storage.sqlite", "gateway.http", "stub.one"} {
		if _, ok := core.GetModule(string(id)); !ok {
			core.RegisterModule(stubModule{id: id})
		}
	}
}

func modules(ids ...string) map[string]yaml.Node {
	m := make(map[string]yaml.Node, len(ids))
	for _, id := range ids {
		m[id] = yaml.Node{}
	}
	return m
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "valid",
			cfg:  Config{Version: "1", Modules: modules("stub.one")},
		},
		{
			name: "gateway with storage",
			cfg:  Config{Version: "1", Modules: modules("gateway.http", "storage.sqlite")},
		},
		{
			name:    "missing version",
			cfg:     Config{Modules: modules("stub.one")},
			wantErr: []string{"version field is required"},
		},
		{
			name:    "unsupported version",
			cfg:     Config{Version: "99", Modules: modules("stub.one")},
			wantErr: []string{`unsupported version "99"`},
		},
		{
			name:    "no modules",
			cfg:     Config{Version: "1"},
			wantErr: []string{"at least one module"},
		},
		{
			name:    "unknown modules all reported",
			cfg:     Config{Version: "1", Modules: modules("bad.one", "bad.two")},
			wantErr: []string{`"bad.one"`, `"bad.two"`},
		},
		{
			name:    "missing dependency",
			cfg:     Config{Version: "1", Modules: modules("gateway.http")},
			wantErr: []string{`"gateway.http" requires module "storage.sqlite"`},
		},
		{
			name: "rule files and tracing",
			cfg: Config{Version: "1", Modules: modules("stub.one"), Engine: EngineConfig{
				RuleFiles: []string{"rules.yaml"},
				Tracing:   TracingConfig{Endpoint: "https://collector:4318"},
			}},
		},
		{
			name:    "blank rule file",
			cfg:     Config{Version: "1", Modules: modules("stub.one"), Engine: EngineConfig{RuleFiles: []string{" "}}},
			wantErr: []string{"rule_files[0]"},
		},
		{
			name: "tracing scheme",
			cfg: Config{Version: "1", Modules: modules("stub.one"), Engine: EngineConfig{
				Tracing: TracingConfig{Endpoint: "grpc://collector"},
			}},
			wantErr: []string{"scheme must be http or https"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tt.cfg)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should contain %q", err, want)
				}
			}
		})
	}
}
