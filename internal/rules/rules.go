// Package rules loads the ordered failure-routing rule set and matches
// failure records against it. First match wins; later rules are never
// consulted, so precedence is the rule author's responsibility.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	yaml "gopkg.in/yaml.v3"

	"lookout/internal/extract"
)

// Rule is one ordered matching policy. A rule matches a record when its
// regexp pattern is found in the failure message, its optional when:
// expression evaluates true, and the record's kind is in scope. Pattern
// and expression are AND-ed when both are present.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Pattern  string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	When     string   `yaml:"when,omitempty" json:"when,omitempty"`
	Kinds    []string `yaml:"kinds,omitempty" json:"kinds,omitempty"`
	Project  string   `yaml:"project,omitempty" json:"project,omitempty"`
	Priority string   `yaml:"priority,omitempty" json:"priority,omitempty"`
	Labels   []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Ignore   bool     `yaml:"ignore,omitempty" json:"ignore,omitempty"`

	re   *regexp.Regexp
	prog *vm.Program
}

// Set is the immutable ordered rule sequence for one run.
type Set struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Decision is the routing produced by matching one record.
type Decision struct {
	// Rule is the matched rule, nil when no rule matched (possible only
	// without a catch-all). A nil-rule decision has a null target and is
	// excluded from tracker mutation.
	Rule     *Rule
	Project  string
	Priority string
	Labels   []string
	Ignore   bool
}

// Matched reports whether any rule accepted the record.
func (d *Decision) Matched() bool { return d.Rule != nil }

// exprEnv is the variable surface a when: expression sees.
func exprEnv(rec *extract.Record) map[string]any {
	return map[string]any{
		"kind":    string(rec.Kind),
		"name":    rec.Name,
		"step":    rec.Step,
		"message": rec.Message,
		"job":     rec.JobName,
	}
}

// LoadFile reads a rule file (YAML or JSON, detected by extension or
// content) and returns the compiled Set.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses and compiles a rule set from bytes. ext is the file
// extension for format hint; empty means detect from content.
func Load(data []byte, ext string) (*Set, error) {
	var set Set

	ext = strings.ToLower(ext)
	trimmed := strings.TrimSpace(string(data))
	isJSON := ext == ".json" || (ext == "" && strings.HasPrefix(trimmed, "{"))

	if isJSON {
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("parse rules json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("parse rules yaml: %w", err)
		}
	}

	if err := set.compile(); err != nil {
		return nil, err
	}
	return &set, nil
}

// compile validates every rule and pre-compiles patterns and
// expressions. Any invalid rule fails the whole set: a rule file that
// half-loads would silently change precedence.
func (s *Set) compile() error {
	if len(s.Rules) == 0 {
		return fmt.Errorf("rules: empty rule set")
	}
	for i := range s.Rules {
		r := &s.Rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if r.Pattern == "" && r.When == "" && !isCatchAllShape(r) {
			return fmt.Errorf("rule %s: needs a pattern or a when expression", r.Name)
		}
		if !r.Ignore && r.Project == "" {
			return fmt.Errorf("rule %s: needs a target project (or ignore: true)", r.Name)
		}
		for _, k := range r.Kinds {
			if k != string(extract.KindTest) && k != string(extract.KindPod) {
				return fmt.Errorf("rule %s: unknown kind %q", r.Name, k)
			}
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return fmt.Errorf("rule %s: bad pattern: %w", r.Name, err)
			}
			r.re = re
		}
		if r.When != "" {
			prog, err := expr.Compile(r.When, expr.Env(exprEnv(&extract.Record{})), expr.AsBool())
			if err != nil {
				return fmt.Errorf("rule %s: bad when expression: %w", r.Name, err)
			}
			r.prog = prog
		}
	}
	return nil
}

// isCatchAllShape reports whether a rule is an explicit unconditional
// entry: no pattern, no expression, no kind restriction.
func isCatchAllShape(r *Rule) bool {
	return r.Pattern == "" && r.When == "" && len(r.Kinds) == 0
}

// HasCatchAll reports whether some rule matches any record
// unconditionally. Without one, unmatched records are possible and the
// run surfaces a configuration warning.
func (s *Set) HasCatchAll() bool {
	for i := range s.Rules {
		r := &s.Rules[i]
		if isCatchAllShape(r) || (r.Pattern == ".*" && r.When == "" && len(r.Kinds) == 0) {
			return true
		}
	}
	return false
}

// Match evaluates the rules in order and returns the first match's
// routing. Pure function of (record, rules); no side effects.
func (s *Set) Match(rec *extract.Record) (*Decision, error) {
	for i := range s.Rules {
		r := &s.Rules[i]
		ok, err := r.matches(rec)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		if ok {
			return &Decision{
				Rule:     r,
				Project:  r.Project,
				Priority: r.Priority,
				Labels:   append([]string(nil), r.Labels...),
				Ignore:   r.Ignore,
			}, nil
		}
	}
	return &Decision{}, nil
}

func (r *Rule) matches(rec *extract.Record) (bool, error) {
	if len(r.Kinds) > 0 {
		inScope := false
		for _, k := range r.Kinds {
			if k == string(rec.Kind) {
				inScope = true
				break
			}
		}
		if !inScope {
			return false, nil
		}
	}
	if r.re != nil && !r.re.MatchString(rec.Message) {
		return false, nil
	}
	if r.prog != nil {
		out, err := expr.Run(r.prog, exprEnv(rec))
		if err != nil {
			return false, fmt.Errorf("eval when: %w", err)
		}
		ok, isBool := out.(bool)
		if !isBool {
			return false, fmt.Errorf("when expression returned %T, want bool", out)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
