package branch

import "time"

// Status is a branch's lifecycle state (spec §3: status-field only,
// never expressed by filesystem relocation).
type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// State is the contents of a branch's state.json.
type State struct {
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Status         Status     `json:"status"`
	DesignApproved bool       `json:"design_approved"`
	Session        string     `json:"session,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DoneAt         *time.Time `json:"done_at,omitempty"`
}
