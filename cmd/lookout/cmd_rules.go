package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"lookout/internal/extract"
	"lookout/internal/rules"
)

var rulesFlags struct {
	kind    string
	name    string
	step    string
	message string
	job     string
}

var rulesCmd = &cobra.Command{
	Use:   "rules <file>",
	Short: "Validate a rule file and print its routing table",
	Long: `Load and compile a rule file, reporting the first invalid rule if any.
On success the ordered routing table is printed; earlier rules shadow
later ones.

With --message (and optionally --kind, --name, --step, --job) a sample
failure is matched against the rules and the winning rule is shown:

  lookout rules rules.yaml --kind test --message "connection refused"`,
	Args: cobra.ExactArgs(1),
	RunE: runRules,
}

func init() {
	f := rulesCmd.Flags()
	f.StringVar(&rulesFlags.kind, "kind", "test", "Sample failure kind (test or pod)")
	f.StringVar(&rulesFlags.name, "name", "", "Sample failure name")
	f.StringVar(&rulesFlags.step, "step", "", "Sample failure step")
	f.StringVar(&rulesFlags.message, "message", "", "Sample failure message to match")
	f.StringVar(&rulesFlags.job, "job", "", "Sample job name")
}

func runRules(_ *cobra.Command, args []string) error {
	set, err := rules.LoadFile(args[0])
	if err != nil {
		return err
	}

	if rulesFlags.message != "" || rulesFlags.name != "" {
		return matchSample(set)
	}

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"#", "Rule", "Pattern", "When", "Kinds", "Target", "Ignore"})
	for i, r := range set.Rules {
		target := r.Project
		if r.Priority != "" {
			target += " / " + r.Priority
		}
		w.AppendRow(table.Row{i + 1, r.Name, r.Pattern, r.When, r.Kinds, target, r.Ignore})
	}
	w.Render()

	if !set.HasCatchAll() {
		fmt.Println(color.YellowString("no catch-all entry: unmatched failures will not be reported"))
	}
	return nil
}

func matchSample(set *rules.Set) error {
	if rulesFlags.kind != string(extract.KindTest) && rulesFlags.kind != string(extract.KindPod) {
		return fmt.Errorf("unknown kind %q, want test or pod", rulesFlags.kind)
	}

	d, err := set.Match(&extract.Record{
		Kind:    extract.Kind(rulesFlags.kind),
		Name:    rulesFlags.name,
		Step:    rulesFlags.step,
		Message: rulesFlags.message,
		JobName: rulesFlags.job,
	})
	if err != nil {
		return err
	}

	switch {
	case !d.Matched():
		fmt.Println(color.YellowString("no rule matched"))
	case d.Ignore:
		fmt.Printf("matched %s: %s\n", color.CyanString(d.Rule.Name), color.YellowString("ignored"))
	default:
		fmt.Printf("matched %s: project=%s", color.CyanString(d.Rule.Name), d.Project)
		if d.Priority != "" {
			fmt.Printf(" priority=%s", d.Priority)
		}
		if len(d.Labels) > 0 {
			fmt.Printf(" labels=%v", d.Labels)
		}
		fmt.Println()
	}
	return nil
}
