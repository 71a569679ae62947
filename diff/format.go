package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"wikigraph/graph"
)

// FormatText renders the diff in a human-readable form. Modified
// multi-line blocks get a line-level patch.
func (d *DocumentDiff) FormatText() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", d.Before, d.After)
	if d.Empty() {
		sb.WriteString("No changes.\n")
		return sb.String()
	}

	for _, u := range d.Units {
		fmt.Fprintf(&sb, "  %s %s %s", getActionChar(u.Action), u.Kind, u.Path)
		if u.Line > 0 {
			fmt.Fprintf(&sb, " (line %d)", u.Line)
		}
		switch u.Action {
		case ActionAdded:
			if u.After != "" {
				fmt.Fprintf(&sb, ": %s", truncateValue(u.After))
			}
			sb.WriteString("\n")
		case ActionRemoved:
			if u.Before != "" {
				fmt.Fprintf(&sb, ": %s", truncateValue(u.Before))
			}
			sb.WriteString("\n")
		case ActionModified:
			if strings.Contains(u.Before, "\n") || strings.Contains(u.After, "\n") {
				sb.WriteString("\n")
				sb.WriteString(linePatch(u.Before, u.After, "      "))
			} else {
				fmt.Fprintf(&sb, ": %s -> %s\n", truncateValue(u.Before), truncateValue(u.After))
			}
		}
	}

	sb.WriteString("\n")
	sb.WriteString(d.FormatStats())
	sb.WriteString("\n")
	return sb.String()
}

// linePatch renders a unified-style line diff of two texts.
func linePatch(before, after, indent string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, df := range diffs {
		prefix := " "
		switch df.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.Split(strings.TrimSuffix(df.Text, "\n"), "\n") {
			fmt.Fprintf(&sb, "%s%s %s\n", indent, prefix, line)
		}
	}
	return sb.String()
}

func getActionChar(action Action) string {
	switch action {
	case ActionAdded:
		return "+"
	case ActionRemoved:
		return "-"
	case ActionModified:
		return "~"
	default:
		return " "
	}
}

func truncateValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return graph.Truncate(s, 60)
}

// FormatJSON formats the diff as JSON.
func (d *DocumentDiff) FormatJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// FormatStats returns just the statistics line.
func (d *DocumentDiff) FormatStats() string {
	s := d.Summary
	return fmt.Sprintf("Summary: %d changes (%d+, %d~, %d-)",
		s.UnitsAdded+s.UnitsModified+s.UnitsRemoved,
		s.UnitsAdded, s.UnitsModified, s.UnitsRemoved)
}
