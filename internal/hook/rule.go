package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/lorekeeper/internal/card"
)

// RuleCardPrefix marks story cards whose description holds rule YAML.
const RuleCardPrefix = "Lore Rule:"

// Rule is a declarative hook: when every condition holds for the event, its
// actions run in order.
type Rule struct {
	Label    string   `yaml:"name"`
	On       Event    `yaml:"on"`
	Prio     int      `yaml:"priority"`
	When     When     `yaml:"when"`
	Do       []Action `yaml:"do"`
	compiled compiled
}

// When holds the rule conditions. Empty fields always match.
type When struct {
	TitleMatches string `yaml:"title_matches"`
	TextContains string `yaml:"text_contains"`
	TextMatches  string `yaml:"text_matches"`
	TurnAtLeast  int    `yaml:"turn_at_least"`
	TurnEvery    int    `yaml:"turn_every"`
}

// Action is one rule step. Exactly one field must be set.
type Action struct {
	Replace      *Replace      `yaml:"replace"`
	AppendMemory *AppendMemory `yaml:"append_memory"`
	Rename       *Rename       `yaml:"rename"`
	Message      string        `yaml:"message"`
}

// Replace rewrites the event text. With may reference capture groups.
type Replace struct {
	Pattern string `yaml:"pattern"`
	With    string `yaml:"with"`
}

// AppendMemory stamps a memory line onto a card. Title defaults to the
// event title.
type AppendMemory struct {
	Title string `yaml:"title"`
	Line  string `yaml:"line"`
}

// Rename retitles a card.
type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type compiled struct {
	title    *regexp.Regexp
	text     *regexp.Regexp
	replaces []*regexp.Regexp
}

// Compile-time interface checks.
var (
	_ Hook  = (*Rule)(nil)
	_ Named = (*Rule)(nil)
)

// Event implements Hook.
func (r *Rule) Event() Event { return r.On }

// Priority implements Hook.
func (r *Rule) Priority() int { return r.Prio }

// Name implements Named.
func (r *Rule) Name() string { return r.Label }

// Compile validates the rule and prepares its patterns. It must be called
// before the rule is registered.
func (r *Rule) Compile() error {
	var errs []error
	if r.Label == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if r.On == "" || !r.On.Valid() {
		errs = append(errs, fmt.Errorf("unknown event %q", r.On))
	}
	if len(r.Do) == 0 {
		errs = append(errs, errors.New("at least one action is required"))
	}
	if r.When.TurnEvery < 0 {
		errs = append(errs, errors.New("turn_every must not be negative"))
	}

	var c compiled
	var err error
	if r.When.TitleMatches != "" {
		if c.title, err = regexp.Compile(r.When.TitleMatches); err != nil {
			errs = append(errs, fmt.Errorf("title_matches: %w", err))
		}
	}
	if r.When.TextMatches != "" {
		if c.text, err = regexp.Compile(r.When.TextMatches); err != nil {
			errs = append(errs, fmt.Errorf("text_matches: %w", err))
		}
	}

	c.replaces = make([]*regexp.Regexp, len(r.Do))
	for i, a := range r.Do {
		set := 0
		if a.Replace != nil {
			set++
			re, err := regexp.Compile(a.Replace.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("do[%d].replace: %w", i, err))
			}
			c.replaces[i] = re
		}
		if a.AppendMemory != nil {
			set++
			if strings.TrimSpace(a.AppendMemory.Line) == "" {
				errs = append(errs, fmt.Errorf("do[%d].append_memory: line is required", i))
			}
		}
		if a.Rename != nil {
			set++
			if a.Rename.To == "" {
				errs = append(errs, fmt.Errorf("do[%d].rename: to is required", i))
			}
		}
		if a.Message != "" {
			set++
		}
		if set != 1 {
			errs = append(errs, fmt.Errorf("do[%d]: exactly one action required, got %d", i, set))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rule %q: %w", r.Label, err)
	}
	r.compiled = c
	return nil
}

// Matches reports whether every condition holds for hctx.
func (r *Rule) Matches(hctx *Context) bool {
	w, p := r.When, hctx.Payload
	if r.compiled.title != nil && !r.compiled.title.MatchString(p.Title) {
		return false
	}
	if w.TextContains != "" && !strings.Contains(strings.ToLower(hctx.Text), strings.ToLower(w.TextContains)) {
		return false
	}
	if r.compiled.text != nil && !r.compiled.text.MatchString(hctx.Text) {
		return false
	}
	if p.Turn < w.TurnAtLeast {
		return false
	}
	if w.TurnEvery > 0 && p.Turn%w.TurnEvery != 0 {
		return false
	}
	return true
}

// Execute runs the actions when the rule matches. Every action is
// attempted; failures are joined.
func (r *Rule) Execute(_ context.Context, hctx *Context) error {
	if !r.Matches(hctx) {
		return nil
	}

	var errs []error
	for i, a := range r.Do {
		switch {
		case a.Replace != nil:
			re := r.compiled.replaces[i]
			if re == nil {
				errs = append(errs, fmt.Errorf("do[%d]: rule not compiled", i))
				continue
			}
			hctx.Text = re.ReplaceAllString(hctx.Text, expandTemplate(a.Replace.With, hctx))
		case a.AppendMemory != nil:
			title := a.AppendMemory.Title
			if title == "" {
				title = "{title}"
			}
			if hctx.API != nil {
				hctx.API.AppendMemory(expand(title, hctx), expand(a.AppendMemory.Line, hctx))
			}
		case a.Rename != nil:
			from := a.Rename.From
			if from == "" {
				from = "{title}"
			}
			if hctx.API != nil {
				if err := hctx.API.Rename(expand(from, hctx), expand(a.Rename.To, hctx)); err != nil {
					errs = append(errs, fmt.Errorf("do[%d].rename: %w", i, err))
				}
			}
		case a.Message != "":
			if hctx.API != nil {
				hctx.API.SetMessage(expand(a.Message, hctx))
			}
		}
	}
	return errors.Join(errs...)
}

func expand(tmpl string, hctx *Context) string {
	return substitute(tmpl, hctx, func(s string) string { return s })
}

// expandTemplate is expand for regexp replacement templates: "$" in the
// substituted values is doubled so it stays literal, while "$1" groups
// written in the rule itself keep working.
func expandTemplate(tmpl string, hctx *Context) string {
	return substitute(tmpl, hctx, func(s string) string { return strings.ReplaceAll(s, "$", "$$") })
}

func substitute(tmpl string, hctx *Context, quote func(string) string) string {
	return strings.NewReplacer(
		"{title}", quote(hctx.Payload.Title),
		"{turn}", strconv.Itoa(hctx.Payload.Turn),
		"{text}", quote(hctx.Text),
	).Replace(tmpl)
}

// ruleFile is the on-disk layout of a rule file.
type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// ParseRules decodes rules from YAML. The document may be a single rule, a
// sequence of rules, or a mapping with a "rules" key. Each rule is compiled.
func ParseRules(data []byte) ([]*Rule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("hook: parse rules: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	var rules []*Rule
	switch {
	case root.Kind == yaml.SequenceNode:
		if err := root.Decode(&rules); err != nil {
			return nil, fmt.Errorf("hook: decode rules: %w", err)
		}
	case root.Kind == yaml.MappingNode && hasKey(root, "rules"):
		var f ruleFile
		if err := root.Decode(&f); err != nil {
			return nil, fmt.Errorf("hook: decode rules: %w", err)
		}
		rules = f.Rules
	case root.Kind == yaml.MappingNode:
		r := &Rule{}
		if err := root.Decode(r); err != nil {
			return nil, fmt.Errorf("hook: decode rule: %w", err)
		}
		rules = []*Rule{r}
	default:
		return nil, errors.New("hook: rules must be a mapping or a sequence")
	}

	var errs []error
	for _, r := range rules {
		if r == nil {
			continue
		}
		if err := r.Compile(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("hook: %w", err)
	}
	return rules, nil
}

func hasKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

// LoadRuleFiles reads and compiles every rule file in paths.
func LoadRuleFiles(paths []string) ([]*Rule, error) {
	var all []*Rule
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("hook: read rules %s: %w", p, err)
		}
		rules, err := ParseRules(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, rules...)
	}
	return all, nil
}

var yamlFence = regexp.MustCompile("(?s)```(?:ya?ml)?\\s*\\n(.*?)```")

// IsRuleCard reports whether c carries rule YAML.
func IsRuleCard(c *card.Card) bool {
	return strings.HasPrefix(strings.TrimSpace(c.Title), RuleCardPrefix)
}

// RulesFromCards compiles the rules held by "Lore Rule:" cards. Rules
// without a name take the card's suffix. A broken card does not prevent the
// others from loading; its error is returned alongside.
func RulesFromCards(cards []*card.Card) ([]*Rule, error) {
	var (
		all  []*Rule
		errs []error
	)
	for _, c := range cards {
		if !IsRuleCard(c) {
			continue
		}
		body := []byte(c.Description)
		if m := yamlFence.FindSubmatch(body); m != nil {
			body = m[1]
		}
		if len(bytes.TrimSpace(body)) == 0 {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.Title), RuleCardPrefix))
		rules, err := parseCardRules(body, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("card %q: %w", c.Title, err))
			continue
		}
		all = append(all, rules...)
	}
	return all, errors.Join(errs...)
}

func parseCardRules(body []byte, name string) ([]*Rule, error) {
	rules, err := ParseRules(body)
	if err == nil {
		return rules, nil
	}
	// A single unnamed rule is common on cards; retry with the card name.
	var r Rule
	if yerr := yaml.Unmarshal(body, &r); yerr != nil || r.Label != "" {
		return nil, err
	}
	r.Label = name
	if cerr := r.Compile(); cerr != nil {
		return nil, cerr
	}
	return []*Rule{&r}, nil
}
