package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// probeModule records each lifecycle call it receives into calls.
type probeModule struct {
	id    ModuleID
	calls *[]string
	fail  string // lifecycle step that returns an error
}

func (m *probeModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module {
		cp := *m
		return &cp
	}}
}

func (m *probeModule) step(name string) error {
	*m.calls = append(*m.calls, name)
	if m.fail == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (m *probeModule) Configure(node *yaml.Node) error {
	var cfg struct {
		Key string `yaml:"key"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	return m.step("configure " + cfg.Key)
}

func (m *probeModule) Provision(ctx *AppContext) error {
	ctx.RegisterService(string(m.id), m)
	return m.step("provision")
}

func (m *probeModule) Validate() error            { return m.step("validate") }
func (m *probeModule) Stop(context.Context) error { return m.step("stop") }

// plainModule implements no lifecycle interface.
type plainModule struct{}

func (plainModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: "test.plain", New: func() Module { return plainModule{} }}
}

func mustNode(t *testing.T, src string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	return *doc.Content[0]
}

func TestAppContext_LoadModule(t *testing.T) {
	tests := []struct {
		name      string
		fail      string
		configure bool
		want      []string
		wantErr   string
	}{
		{
			name: "no config",
			want: []string{"provision", "validate"},
		},
		{
			name:      "with config",
			configure: true,
			want:      []string{"configure hello", "provision", "validate"},
		},
		{
			name:      "configure error",
			configure: true,
			fail:      "configure hello",
			want:      []string{"configure hello"},
			wantErr:   "configuring module test.probe",
		},
		{
			name:    "provision error",
			fail:    "provision",
			want:    []string{"provision"},
			wantErr: "provisioning module test.probe",
		},
		{
			name:    "validate error stops module",
			fail:    "validate",
			want:    []string{"provision", "validate", "stop"},
			wantErr: "validating module test.probe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)

			var calls []string
			RegisterModule(&probeModule{id: "test.probe", calls: &calls, fail: tt.fail})

			ctx := NewAppContext(nil, t.TempDir())
			if tt.configure {
				ctx = ctx.WithModuleConfigs(map[string]yaml.Node{"test.probe": mustNode(t, "key: hello")})
			}

			mod, err := ctx.LoadModule("test.probe")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("LoadModule error: %v", err)
				}
				if _, err := Service[*probeModule](ctx, "test.probe"); err != nil {
					t.Errorf("provisioned module not visible to parent context: %v", err)
				}
				if mod == nil {
					t.Fatal("expected module")
				}
			}
			if !slices.Equal(calls, tt.want) {
				t.Errorf("calls = %v, want %v", calls, tt.want)
			}
		})
	}
}

func TestAppContext_LoadModule_UnknownAndPlain(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(plainModule{})

	ctx := NewAppContext(nil, t.TempDir()).WithModuleConfigs(map[string]yaml.Node{
		"test.plain": mustNode(t, "ignored: true"),
	})
	if _, err := ctx.LoadModule("does.not.exist"); err == nil {
		t.Error("expected error for unknown module")
	}
	if _, err := ctx.LoadModule("test.plain"); err != nil {
		t.Errorf("module without lifecycle hooks: %v", err)
	}
}

func TestAppContext_ForModule(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := NewAppContext(logger, "/data").WithModuleConfigs(map[string]yaml.Node{"gateway.http": {}})

	child := ctx.ForModule("gateway.http").ForModule("cron.prune")
	child.Logger.Info("hello")

	if out := buf.String(); !strings.Contains(out, "module=cron.prune") || strings.Contains(out, "gateway.http") {
		t.Errorf("child logger should carry only its own module id: %s", out)
	}
	if _, ok := child.moduleConfigs["gateway.http"]; !ok {
		t.Error("ForModule should keep module configs")
	}
	if child.DataDir != "/data" {
		t.Errorf("DataDir = %q", child.DataDir)
	}
}

func TestAppContext_Services(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(nil, "/data")
	ctx.RegisterService("engine.clock", 42)

	child := ctx.ForModule("gateway.http")
	got, err := Service[int](child, "engine.clock")
	if err != nil {
		t.Fatalf("Service error: %v", err)
	}
	if got != 42 {
		t.Errorf("Service = %d, want 42", got)
	}
	if _, err := Service[string](child, "engine.clock"); err == nil {
		t.Error("expected type mismatch error")
	}
	if _, err := Service[int](child, "missing"); err == nil {
		t.Error("expected error for unregistered service")
	}
}

func TestRegistry(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&probeModule{id: "storage.sqlite", calls: &calls})
	RegisterModule(&probeModule{id: "gateway.http", calls: &calls})
	RegisterModule(&probeModule{id: "cron.prune", calls: &calls})

	var ids []ModuleID
	for _, info := range GetModules() {
		ids = append(ids, info.ID)
	}
	if want := []ModuleID{"cron.prune", "gateway.http", "storage.sqlite"}; !slices.Equal(ids, want) {
		t.Errorf("GetModules = %v, want %v", ids, want)
	}
	if got := Namespaces()["storage"]; !slices.Equal(got, []ModuleID{"storage.sqlite"}) {
		t.Errorf("Namespaces[storage] = %v", got)
	}

	panics := func(m Module) (p bool) {
		defer func() { p = recover() != nil }()
		RegisterModule(m)
		return false
	}
	if !panics(&probeModule{id: "cron.prune", calls: &calls}) {
		t.Error("duplicate registration should panic")
	}
	if !panics(&probeModule{calls: &calls}) {
		t.Error("empty ID should panic")
	}
}

func TestModuleID_Namespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   ModuleID
		want string
	}{
		{"storage.sqlite", "storage"},
		{"gateway.http", "gateway"},
		{"standalone", "standalone"},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.want {
			t.Errorf("%q.Namespace() = %q, want %q", tt.id, got, tt.want)
		}
	}
}
