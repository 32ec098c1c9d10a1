// Package mcp exposes the triage engine over the Model Context
// Protocol so agents can inspect rule sets, classify single failures,
// and dry-run whole job runs without touching the tracker.
package mcp

import (
	"context"
	"fmt"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"lookout/internal/artifact"
	"lookout/internal/extract"
	"lookout/internal/rules"
	"lookout/internal/run"
)

// Server wraps the MCP SDK server. Every tool is read-only with respect
// to the bug tracker: triage_run always executes in dry-run mode.
type Server struct {
	MCPServer *sdkmcp.Server

	// DefaultRulesPath is used when a tool call omits rules_path.
	DefaultRulesPath string

	mu     sync.Mutex
	cached *rules.Set
	path   string
}

// NewServer creates an MCP server with the triage tool set.
func NewServer(rulesPath string) *Server {
	s := &Server{DefaultRulesPath: rulesPath}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "lookout", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_rules",
		Description: "List the ordered failure-routing rules. Earlier rules shadow later ones.",
	}, s.handleListRules)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "match_failure",
		Description: "Classify one failure record against the rule set and return the routing decision. No tracker interaction.",
	}, s.handleMatchFailure)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "triage_run",
		Description: "Dry-run a full triage pass over a local artifacts directory: extraction and matching only, counters in the result.",
	}, s.handleTriageRun)
}

// loadSet resolves and caches the rule set for a tool call.
func (s *Server) loadSet(path string) (*rules.Set, error) {
	if path == "" {
		path = s.DefaultRulesPath
	}
	if path == "" {
		return nil, fmt.Errorf("no rules path: pass rules_path or start the server with one")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.path == path {
		return s.cached, nil
	}
	set, err := rules.LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.cached, s.path = set, path
	return set, nil
}

// --- Tool input/output types ---

type ruleSummary struct {
	Name     string   `json:"name"`
	Pattern  string   `json:"pattern,omitempty"`
	When     string   `json:"when,omitempty"`
	Kinds    []string `json:"kinds,omitempty"`
	Project  string   `json:"project,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Ignore   bool     `json:"ignore,omitempty"`
}

type listRulesInput struct {
	RulesPath string `json:"rules_path,omitempty" jsonschema:"rule file path (YAML or JSON); defaults to the server's rule file"`
}

type listRulesOutput struct {
	Rules    []ruleSummary `json:"rules"`
	CatchAll bool          `json:"catch_all"`
}

type matchFailureInput struct {
	RulesPath string `json:"rules_path,omitempty" jsonschema:"rule file path; defaults to the server's rule file"`
	Kind      string `json:"kind" jsonschema:"failure kind (test or pod)"`
	Name      string `json:"name" jsonschema:"test case name or step name"`
	Step      string `json:"step,omitempty" jsonschema:"CI step the failure belongs to"`
	Message   string `json:"message,omitempty" jsonschema:"failure message or log excerpt"`
	Job       string `json:"job,omitempty" jsonschema:"job name"`
}

type matchFailureOutput struct {
	Matched  bool     `json:"matched"`
	Rule     string   `json:"rule,omitempty"`
	Project  string   `json:"project,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Ignore   bool     `json:"ignore,omitempty"`
}

type triageRunInput struct {
	RulesPath    string `json:"rules_path,omitempty" jsonschema:"rule file path; defaults to the server's rule file"`
	ArtifactsDir string `json:"artifacts_dir" jsonschema:"local directory holding the job run's artifacts"`
	Job          string `json:"job" jsonschema:"job name attached to extracted records"`
	BuildID      string `json:"build_id,omitempty" jsonschema:"build identifier attached to extracted records"`
}

type triageRunOutput struct {
	RunID            string   `json:"run_id"`
	State            string   `json:"state"`
	Processed        int      `json:"processed"`
	Matched          int      `json:"matched"`
	Unmatched        int      `json:"unmatched"`
	Ignored          int      `json:"ignored"`
	SkippedArtifacts int      `json:"skipped_artifacts"`
	Errored          int      `json:"errored"`
	Warnings         []string `json:"warnings,omitempty"`
	RecordErrors     []string `json:"record_errors,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleListRules(_ context.Context, _ *sdkmcp.CallToolRequest, input listRulesInput) (*sdkmcp.CallToolResult, listRulesOutput, error) {
	set, err := s.loadSet(input.RulesPath)
	if err != nil {
		return nil, listRulesOutput{}, err
	}

	out := listRulesOutput{CatchAll: set.HasCatchAll()}
	for i := range set.Rules {
		r := &set.Rules[i]
		out.Rules = append(out.Rules, ruleSummary{
			Name:     r.Name,
			Pattern:  r.Pattern,
			When:     r.When,
			Kinds:    r.Kinds,
			Project:  r.Project,
			Priority: r.Priority,
			Labels:   r.Labels,
			Ignore:   r.Ignore,
		})
	}
	return nil, out, nil
}

func (s *Server) handleMatchFailure(_ context.Context, _ *sdkmcp.CallToolRequest, input matchFailureInput) (*sdkmcp.CallToolResult, matchFailureOutput, error) {
	set, err := s.loadSet(input.RulesPath)
	if err != nil {
		return nil, matchFailureOutput{}, err
	}
	if input.Kind != string(extract.KindTest) && input.Kind != string(extract.KindPod) {
		return nil, matchFailureOutput{}, fmt.Errorf("unknown kind %q, want test or pod", input.Kind)
	}

	rec := &extract.Record{
		Kind:    extract.Kind(input.Kind),
		Name:    input.Name,
		Step:    input.Step,
		Message: input.Message,
		JobName: input.Job,
	}
	d, err := set.Match(rec)
	if err != nil {
		return nil, matchFailureOutput{}, err
	}
	if !d.Matched() {
		return nil, matchFailureOutput{}, nil
	}
	return nil, matchFailureOutput{
		Matched:  true,
		Rule:     d.Rule.Name,
		Project:  d.Project,
		Priority: d.Priority,
		Labels:   d.Labels,
		Ignore:   d.Ignore,
	}, nil
}

func (s *Server) handleTriageRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input triageRunInput) (*sdkmcp.CallToolResult, triageRunOutput, error) {
	set, err := s.loadSet(input.RulesPath)
	if err != nil {
		return nil, triageRunOutput{}, err
	}
	src, err := artifact.NewDirSource(input.ArtifactsDir)
	if err != nil {
		return nil, triageRunOutput{}, err
	}

	out, err := run.Execute(ctx, run.Config{
		Source: src,
		Rules:  set,
		DryRun: true,
		Meta:   extract.Meta{JobName: input.Job, BuildID: input.BuildID},
	})
	if err != nil {
		return nil, triageRunOutput{}, err
	}
	return nil, triageRunOutput{
		RunID:            out.RunID,
		State:            string(out.State),
		Processed:        out.Processed,
		Matched:          out.Matched,
		Unmatched:        out.Unmatched,
		Ignored:          out.Ignored,
		SkippedArtifacts: out.SkippedArtifacts,
		Errored:          out.Errored,
		Warnings:         out.Warnings,
		RecordErrors:     out.RecordErrors,
	}, nil
}
