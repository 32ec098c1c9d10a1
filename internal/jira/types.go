package jira

// --- Jira REST v2 response types (hand-written, fields we consume) ---

// User is the authenticated user returned by /myself.
type User struct {
	Name         string `json:"name,omitempty"`
	Key          string `json:"key,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	Active       bool   `json:"active,omitempty"`
}

// Issue is one tracker issue as returned by search.
type Issue struct {
	ID     string      `json:"id,omitempty"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields carries the subset of issue fields lookout reads and writes.
type IssueFields struct {
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Project     *Project   `json:"project,omitempty"`
	IssueType   *IssueType `json:"issuetype,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Status      *Status    `json:"status,omitempty"`
}

// Project references a Jira project by key.
type Project struct {
	Key string `json:"key"`
}

// IssueType references an issue type by name (e.g. "Bug").
type IssueType struct {
	Name string `json:"name"`
}

// Priority references a priority by name (e.g. "Major").
type Priority struct {
	Name string `json:"name"`
}

// Status is an issue's workflow status with its category.
type Status struct {
	Name           string          `json:"name,omitempty"`
	StatusCategory *StatusCategory `json:"statusCategory,omitempty"`
}

// StatusCategory is the coarse open/done classification. Key is one of
// "new", "indeterminate", "done".
type StatusCategory struct {
	Key string `json:"key"`
}

// Done reports whether the issue's status category is terminal.
func (s *Status) Done() bool {
	return s != nil && s.StatusCategory != nil && s.StatusCategory.Key == "done"
}

// searchRequest is the POST /search body.
type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// SearchResult is the POST /search response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// CreatedIssue is the create-issue response.
type CreatedIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// ErrorBody is Jira's error response shape.
type ErrorBody struct {
	ErrorMessages []string          `json:"errorMessages,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// Messages flattens both error containers into one list.
func (e *ErrorBody) Messages() []string {
	msgs := append([]string(nil), e.ErrorMessages...)
	for field, msg := range e.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	return msgs
}
