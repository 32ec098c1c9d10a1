// Package junitxml parses JUnit-style XML test reports.
//
// Both document shapes produced by CI tooling are accepted: a
// <testsuites> root wrapping one or more <testsuite> elements, and a
// bare <testsuite> root. Suites may nest arbitrarily deep.
package junitxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Suite is one <testsuite> element, possibly containing nested suites.
type Suite struct {
	XMLName  xml.Name `xml:"testsuite"`
	Name     string   `xml:"name,attr"`
	Tests    int      `xml:"tests,attr"`
	Failures int      `xml:"failures,attr"`
	Errors   int      `xml:"errors,attr"`
	Skipped  int      `xml:"skipped,attr"`
	Suites   []Suite  `xml:"testsuite"`
	Cases    []Case   `xml:"testcase"`
}

// Case is one <testcase> element with its optional result child.
type Case struct {
	Name      string  `xml:"name,attr"`
	ClassName string  `xml:"classname,attr"`
	Time      string  `xml:"time,attr"`
	Failure   *Result `xml:"failure"`
	Error     *Result `xml:"error"`
	Skipped   *Result `xml:"skipped"`
	SystemOut string  `xml:"system-out"`
}

// Result is the body of a <failure>, <error> or <skipped> child.
type Result struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// Status classifies a test case by its result children.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
	StatusSkipped Status = "skipped"
)

// Status returns the case's status. A case with both <failure> and
// <error> counts as failed; <skipped> only applies when neither is set.
func (c *Case) Status() Status {
	switch {
	case c.Failure != nil:
		return StatusFailed
	case c.Error != nil:
		return StatusErrored
	case c.Skipped != nil:
		return StatusSkipped
	}
	return StatusPassed
}

// FailureText returns the message for a failed or errored case: the
// result's message attribute if present, otherwise the element body.
// Returns "" for passing/skipped cases and for results with no text.
func (c *Case) FailureText() string {
	var r *Result
	switch {
	case c.Failure != nil:
		r = c.Failure
	case c.Error != nil:
		r = c.Error
	default:
		return ""
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(r.Body)
}

// Document is a parsed report: the flattened list of top-level suites.
type Document struct {
	Suites []Suite
}

// Walk calls fn for every test case in the document, including cases in
// nested suites. The suite argument is the case's immediate parent.
func (d *Document) Walk(fn func(suite *Suite, c *Case)) {
	for i := range d.Suites {
		walkSuite(&d.Suites[i], fn)
	}
}

func walkSuite(s *Suite, fn func(*Suite, *Case)) {
	for i := range s.Cases {
		fn(s, &s.Cases[i])
	}
	for i := range s.Suites {
		walkSuite(&s.Suites[i], fn)
	}
}

// testsuites is the <testsuites> wrapper root.
type testsuites struct {
	XMLName xml.Name `xml:"testsuites"`
	Suites  []Suite  `xml:"testsuite"`
}

// Parse reads a JUnit XML document from r. The root may be either
// <testsuites> or a single <testsuite>; anything else is an error.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("junitxml: read: %w", err)
	}

	var wrapped testsuites
	if err := xml.Unmarshal(data, &wrapped); err == nil {
		return &Document{Suites: wrapped.Suites}, nil
	}

	var single Suite
	if err := xml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("junitxml: parse: %w", err)
	}
	return &Document{Suites: []Suite{single}}, nil
}

// IsReportName reports whether a file name looks like a JUnit report.
// CI steps name these inconsistently (junit_install.xml, junit-e2e.xml,
// junit_operator_01.xml), so the check is a loose contains test.
func IsReportName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "junit") && strings.Contains(lower, "xml")
}
