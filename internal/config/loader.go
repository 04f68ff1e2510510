package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// varRef matches ${NAME}, ${NAME:-fallback} and ${NAME:?message}. A
// preceding "$" escapes the reference and yields it literally.
var varRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])((?:[^}\\]|\\.)*))?\}`)

// ErrEmpty is returned when a configuration file holds no document.
var ErrEmpty = errors.New("config: empty document")

// Load reads the YAML file at path, substitutes environment references and
// decodes it into a Config. Unknown top-level keys are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML after substituting variables through lookup.
func Parse(raw []byte, lookup func(string) (string, bool)) (*Config, error) {
	expanded, err := substitute(raw, lookup)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	return &cfg, nil
}

// substitute rewrites variable references line by line. Comment lines are
// copied untouched so a commented-out reference never fails the load.
func substitute(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var (
		out  bytes.Buffer
		errs []error
	)
	for line := range bytes.Lines(raw) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("#")) {
			out.Write(line)
			continue
		}
		out.Write(varRef.ReplaceAllFunc(line, func(match []byte) []byte {
			if match[1] == '$' {
				return match[1:]
			}
			sub := varRef.FindSubmatch(match)
			name, op, arg := string(sub[1]), string(sub[2]), unescape(string(sub[3]))

			if v, ok := lookup(name); ok && (v != "" || op == "") {
				return []byte(v)
			}
			switch op {
			case "-":
				return []byte(arg)
			case "?":
				if arg == "" {
					arg = "required"
				}
				errs = append(errs, fmt.Errorf("variable %s: %s", name, arg))
			default:
				errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
			}
			return match
		}))
	}
	return out.Bytes(), errors.Join(errs...)
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
