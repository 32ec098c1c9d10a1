package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"lookout/internal/extract"
)

const sampleRules = `
rules:
  - name: infra-network
    pattern: "connection refused"
    project: INFRA
    priority: High
    labels: [network]
  - name: pod-oom
    when: 'kind == "pod" && message contains "oom"'
    project: NODE
    priority: Critical
  - name: known-flake
    pattern: "known flake KFLK-7"
    ignore: true
  - name: default
    project: DEFAULT
    priority: Low
`

func mustLoad(t *testing.T, doc string) *Set {
	t.Helper()
	set, err := Load([]byte(doc), ".yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return set
}

func TestMatch_FirstMatchWins(t *testing.T) {
	set := mustLoad(t, `
rules:
  - name: specific
    pattern: "connection refused"
    project: INFRA
  - name: broad
    pattern: "refused"
    project: OTHER
  - name: default
    project: DEFAULT
`)
	d, err := set.Match(&extract.Record{Kind: extract.KindTest, Message: "connection refused by peer"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Rule == nil || d.Rule.Name != "specific" {
		t.Fatalf("expected rule 'specific', got %+v", d)
	}
	if d.Project != "INFRA" {
		t.Errorf("expected project INFRA, got %s", d.Project)
	}
}

func TestMatch_KindConstraint(t *testing.T) {
	set := mustLoad(t, `
rules:
  - name: pod-only
    pattern: "timeout"
    kinds: [pod]
    project: NODE
  - name: default
    project: DEFAULT
`)
	d, err := set.Match(&extract.Record{Kind: extract.KindTest, Message: "timeout waiting"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Rule.Name != "default" {
		t.Errorf("test record should skip pod-only rule, matched %s", d.Rule.Name)
	}

	d, err = set.Match(&extract.Record{Kind: extract.KindPod, Message: "timeout waiting"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Rule.Name != "pod-only" {
		t.Errorf("pod record should match pod-only rule, matched %s", d.Rule.Name)
	}
}

func TestMatch_ExprPredicate(t *testing.T) {
	set := mustLoad(t, sampleRules)

	d, err := set.Match(&extract.Record{Kind: extract.KindPod, Message: "container oom killed"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Rule.Name != "pod-oom" || d.Priority != "Critical" {
		t.Fatalf("expected pod-oom/Critical, got %+v", d)
	}

	// Same message on a test record falls through to the default.
	d, err = set.Match(&extract.Record{Kind: extract.KindTest, Message: "container oom killed"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Rule.Name != "default" {
		t.Errorf("expected default, got %s", d.Rule.Name)
	}
}

func TestMatch_IgnoreRule(t *testing.T) {
	set := mustLoad(t, sampleRules)
	d, err := set.Match(&extract.Record{Kind: extract.KindTest, Message: "known flake KFLK-7 strikes again"})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Ignore {
		t.Errorf("expected ignore decision, got %+v", d)
	}
}

func TestMatch_EmptyMessageHitsCatchAll(t *testing.T) {
	set := mustLoad(t, sampleRules)
	d, err := set.Match(&extract.Record{Kind: extract.KindTest, Name: "testD", Message: ""})
	if err != nil {
		t.Fatal(err)
	}
	if d.Rule.Name != "default" || d.Project != "DEFAULT" {
		t.Fatalf("expected default routing for empty message, got %+v", d)
	}
}

func TestMatch_NoCatchAll(t *testing.T) {
	set := mustLoad(t, `
rules:
  - name: only
    pattern: "very specific"
    project: P
`)
	if set.HasCatchAll() {
		t.Error("rule set should not report a catch-all")
	}
	d, err := set.Match(&extract.Record{Kind: extract.KindTest, Message: "unrelated"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Matched() {
		t.Errorf("expected unmatched decision, got %+v", d)
	}
	if d.Project != "" {
		t.Errorf("unmatched decision must have a null target, got %q", d.Project)
	}
}

func TestHasCatchAll(t *testing.T) {
	if !mustLoad(t, sampleRules).HasCatchAll() {
		t.Error("bare rule should count as catch-all")
	}
	dotStar := mustLoad(t, "rules:\n  - name: d\n    pattern: \".*\"\n    project: D\n")
	if !dotStar.HasCatchAll() {
		t.Error(".* pattern should count as catch-all")
	}
}

func TestLoad_JSON(t *testing.T) {
	set, err := Load([]byte(`{"rules": [{"name": "d", "project": "D"}]}`), "")
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if len(set.Rules) != 1 || set.Rules[0].Project != "D" {
		t.Fatalf("unexpected set: %+v", set.Rules)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"empty set", "rules: []"},
		{"bad regexp", "rules:\n  - name: r\n    pattern: \"[\"\n    project: P\n"},
		{"bad expr", "rules:\n  - name: r\n    when: \"kind ==\"\n    project: P\n"},
		{"missing project", "rules:\n  - name: r\n    pattern: \"x\"\n"},
		{"unknown kind", "rules:\n  - name: r\n    pattern: \"x\"\n    kinds: [container]\n    project: P\n"},
		{"not yaml", ": ::: ["},
	}
	for _, tc := range cases {
		if _, err := Load([]byte(tc.doc), ".yaml"); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestMatch_LabelsCopied(t *testing.T) {
	set := mustLoad(t, sampleRules)
	d, err := set.Match(&extract.Record{Kind: extract.KindTest, Message: "connection refused"})
	if err != nil {
		t.Fatal(err)
	}
	d.Labels[0] = "mutated"
	d2, _ := set.Match(&extract.Record{Kind: extract.KindTest, Message: "connection refused"})
	if diff := cmp.Diff([]string{"network"}, d2.Labels); diff != "" {
		t.Errorf("decision labels must not alias rule labels (-want +got):\n%s", diff)
	}
}
