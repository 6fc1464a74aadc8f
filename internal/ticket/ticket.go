// Package ticket implements the Ticket entity and TicketStore
// operations from spec §3 and §4.7: CRUD over markdown-with-frontmatter
// files, dependency-graph queries (ready set, cycle detection), short-id
// resolution, and branch-to-branch moves.
package ticket

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jbohnslav/kingdom/internal/frontmatter"
	"github.com/jbohnslav/kingdom/internal/kderrors"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// Type categorizes the kind of work a ticket represents.
type Type string

const (
	TypeTask    Type = "task"
	TypeBug     Type = "bug"
	TypeFeature Type = "feature"
	TypeChore   Type = "chore"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{4}$`)

// ValidID reports whether id matches the required 4-hex-character form.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Ticket is one unit of work.
type Ticket struct {
	ID        string
	Status    Status
	Type      Type
	Priority  int
	Deps      []string
	Links     []string
	Assignee  string
	CreatedAt time.Time

	Title       string
	Description string
	Criteria    []string
	Worklog     []string

	// Path is set by the store on load/save; empty for tickets not yet
	// persisted anywhere.
	Path string
}

const keyOrderFields = "id,status,deps,links,created,type,priority,assignee"

var keyOrder = strings.Split(keyOrderFields, ",")

// Encode serializes a Ticket to its markdown-with-frontmatter form.
func (t *Ticket) Encode() string {
	fields := map[string]frontmatter.Value{
		"id":      t.ID,
		"status":  string(t.Status),
		"deps":    append([]string{}, t.Deps...),
		"links":   append([]string{}, t.Links...),
		"created": t.CreatedAt.UTC().Format(time.RFC3339),
		"type":    string(t.Type),
	}
	if t.Priority != 0 {
		fields["priority"] = int64(t.Priority)
	}
	if t.Assignee != "" {
		fields["assignee"] = t.Assignee
	}

	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n", t.Title)
	if t.Description != "" {
		body.WriteString("\n")
		body.WriteString(t.Description)
		body.WriteString("\n")
	}
	if len(t.Criteria) > 0 {
		body.WriteString("\n## Acceptance Criteria\n\n")
		for _, c := range t.Criteria {
			fmt.Fprintf(&body, "- [ ] %s\n", c)
		}
	}
	if len(t.Worklog) > 0 {
		body.WriteString("\n## Worklog\n\n")
		for _, w := range t.Worklog {
			fmt.Fprintf(&body, "- %s\n", w)
		}
	}

	return frontmatter.Emit(fields, keyOrder, strings.TrimRight(body.String(), "\n")+"\n")
}

// Decode parses raw markdown-with-frontmatter into a Ticket.
func Decode(raw string) (*Ticket, error) {
	doc, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, kderrors.Wrap(kderrors.Parse, err, "decode ticket")
	}

	t := &Ticket{}
	t.ID, _ = doc.Fields["id"].(string)
	if s, ok := doc.Fields["status"].(string); ok {
		t.Status = Status(s)
	}
	if s, ok := doc.Fields["type"].(string); ok {
		t.Type = Type(s)
	}
	t.Deps = stringList(doc.Fields["deps"])
	t.Links = stringList(doc.Fields["links"])
	t.Assignee, _ = doc.Fields["assignee"].(string)

	if n, ok := doc.Fields["priority"].(int64); ok {
		t.Priority = int(n)
	}
	if s, ok := doc.Fields["created"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			t.CreatedAt = ts
		}
	}

	parseBody(t, doc.Body)
	return t, nil
}

func stringList(v frontmatter.Value) []string {
	if v == nil {
		return []string{}
	}
	if l, ok := v.([]string); ok {
		return l
	}
	return []string{}
}

func parseBody(t *Ticket, body string) {
	lines := strings.Split(body, "\n")
	section := "description"
	var desc, criteria, worklog []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "# ") && t.Title == "":
			t.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			continue
		case strings.HasPrefix(trimmed, "## Acceptance Criteria"):
			section = "criteria"
			continue
		case strings.HasPrefix(trimmed, "## Worklog"):
			section = "worklog"
			continue
		}

		switch section {
		case "description":
			desc = append(desc, line)
		case "criteria":
			if item := strings.TrimPrefix(trimmed, "- [ ] "); item != trimmed {
				criteria = append(criteria, item)
			} else if item := strings.TrimPrefix(trimmed, "- [x] "); item != trimmed {
				criteria = append(criteria, item)
			}
		case "worklog":
			if item := strings.TrimPrefix(trimmed, "- "); item != trimmed && item != "" {
				worklog = append(worklog, item)
			}
		}
	}

	t.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	t.Criteria = criteria
	t.Worklog = worklog
}

// HasDep reports whether deps already contains dep.
func HasDep(deps []string, dep string) bool {
	for _, d := range deps {
		if d == dep {
			return true
		}
	}
	return false
}
