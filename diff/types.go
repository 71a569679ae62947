// Package diff compares two compiled documents block by block.
package diff

// Action represents the type of change.
type Action string

const (
	ActionAdded    Action = "added"
	ActionModified Action = "modified"
	ActionRemoved  Action = "removed"
)

// UnitDiff describes a change to one block or semantic node.
type UnitDiff struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Action Action `json:"action"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// DocumentDiff is the full comparison of two documents.
type DocumentDiff struct {
	Before  string     `json:"before"`
	After   string     `json:"after"`
	Units   []UnitDiff `json:"units"`
	Summary Summary    `json:"summary"`
}

// Summary counts changes by action.
type Summary struct {
	UnitsAdded    int `json:"unitsAdded"`
	UnitsModified int `json:"unitsModified"`
	UnitsRemoved  int `json:"unitsRemoved"`
}

// Empty reports whether the documents are equivalent.
func (d *DocumentDiff) Empty() bool { return len(d.Units) == 0 }

// ComputeSummary fills Summary from Units.
func (d *DocumentDiff) ComputeSummary() {
	d.Summary = Summary{}
	for _, u := range d.Units {
		switch u.Action {
		case ActionAdded:
			d.Summary.UnitsAdded++
		case ActionModified:
			d.Summary.UnitsModified++
		case ActionRemoved:
			d.Summary.UnitsRemoved++
		}
	}
}
