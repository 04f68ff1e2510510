package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/flemzord/lorekeeper/internal/core"
)

// requires lists, per module, the modules it needs loaded alongside.
var requires = map[string][]string{
	"gateway.http": {"storage.sqlite"},
	"cron.prune":   {"storage.sqlite"},
}

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present and
// registered, that module dependencies are satisfied, and that the engine
// section is well formed.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		for _, dep := range requires[id] {
			if _, ok := cfg.Modules[dep]; !ok {
				errs = append(errs, fmt.Errorf("config: module %q requires module %q", id, dep))
			}
		}
	}

	errs = append(errs, validateEngine(cfg.Engine)...)
	return errors.Join(errs...)
}

func validateEngine(e EngineConfig) []error {
	var errs []error
	for i, p := range e.RuleFiles {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("config: engine.rule_files[%d]: path is empty", i))
		}
	}
	if ep := e.Tracing.Endpoint; ep != "" {
		u, err := url.Parse(ep)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("config: engine.tracing.endpoint: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("config: engine.tracing.endpoint: scheme must be http or https, got %q", u.Scheme))
		}
	}
	return errs
}
