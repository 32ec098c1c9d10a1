package junitxml

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const nestedReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="e2e" tests="3" failures="1">
    <testcase name="testA" classname="pkg.Suite" time="0.01"/>
    <testcase name="testB" classname="pkg.Suite">
      <failure message="connection refused">stack trace here</failure>
    </testcase>
    <testcase name="testC" classname="pkg.Suite">
      <skipped message="not applicable"/>
    </testcase>
    <testsuite name="nested">
      <testcase name="testD">
        <error type="Exception">panic: nil deref</error>
      </testcase>
    </testsuite>
  </testsuite>
</testsuites>`

func TestParse_NestedSuites(t *testing.T) {
	doc, err := Parse(strings.NewReader(nestedReport))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var got []string
	doc.Walk(func(s *Suite, c *Case) {
		got = append(got, s.Name+"/"+c.Name+":"+string(c.Status()))
	})
	want := []string{
		"e2e/testA:passed",
		"e2e/testB:failed",
		"e2e/testC:skipped",
		"nested/testD:errored",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_BareSuiteRoot(t *testing.T) {
	report := `<testsuite name="install" tests="1" failures="1">
  <testcase name="testX"><failure message="timed out"/></testcase>
</testsuite>`
	doc, err := Parse(strings.NewReader(report))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Suites) != 1 || doc.Suites[0].Name != "install" {
		t.Fatalf("unexpected suites: %+v", doc.Suites)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse(strings.NewReader("<testsuites><testsuite")); err == nil {
		t.Error("expected error for truncated document")
	}
	if _, err := Parse(strings.NewReader("not xml at all")); err == nil {
		t.Error("expected error for non-XML content")
	}
	if _, err := Parse(strings.NewReader("<report/>")); err == nil {
		t.Error("expected error for unknown root element")
	}
}

func TestFailureText(t *testing.T) {
	cases := []struct {
		name string
		c    Case
		want string
	}{
		{"message attr", Case{Failure: &Result{Message: "connection refused"}}, "connection refused"},
		{"body fallback", Case{Failure: &Result{Body: "  panic: boom\n"}}, "panic: boom"},
		{"error child", Case{Error: &Result{Message: "oom killed"}}, "oom killed"},
		{"empty failure", Case{Failure: &Result{}}, ""},
		{"passing", Case{}, ""},
		{"skipped", Case{Skipped: &Result{Message: "n/a"}}, ""},
	}
	for _, tc := range cases {
		if got := tc.c.FailureText(); got != tc.want {
			t.Errorf("%s: FailureText() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsReportName(t *testing.T) {
	yes := []string{"junit_install.xml", "junit-e2e.xml", "JUnit_operator_01.XML"}
	no := []string{"build-log.txt", "finished.json", "results.xml", "junit.txt"}
	for _, n := range yes {
		if !IsReportName(n) {
			t.Errorf("IsReportName(%q) = false, want true", n)
		}
	}
	for _, n := range no {
		if IsReportName(n) {
			t.Errorf("IsReportName(%q) = true, want false", n)
		}
	}
}
