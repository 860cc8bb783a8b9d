package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.SessionID
	if label == "" {
		label = "all"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder

	// Header
	firstTime := formatDateRange(result.Summary.FirstTimestamp)
	lastTime := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("Session: %s | %s - %s UTC\n", label, firstTime, lastTime))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		b.WriteString(FormatEntry(e))
		b.WriteString("\n")
	}

	// Footer
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatEntry renders a single entry as one timeline row.
func FormatEntry(e Entry) string {
	ts := formatTimeOnly(e.Timestamp)
	subject := e.Action
	if e.Kind == KindTransition {
		subject = e.Transition
	}
	move := ""
	if e.StateFrom != "" {
		move = e.StateFrom
		if e.StateTo != "" {
			move += " -> " + e.StateTo
		}
	}
	return fmt.Sprintf("%-10s %-10s %-8s %-9s %-10s %-26s %s",
		ts, e.Kind, e.Actor, e.Outcome, subject, truncate(move, 26), e.RuleID)
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.AllowCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.AllowCount))
	}
	if s.DenyCount > 0 {
		parts = append(parts, fmt.Sprintf("%d deny", s.DenyCount))
	}
	if s.EscalateCount > 0 {
		parts = append(parts, fmt.Sprintf("%d escalate", s.EscalateCount))
	}
	if s.RejectedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", s.RejectedCount))
	}

	state := s.FinalState
	if state == "" {
		state = "-"
	}
	return fmt.Sprintf("Summary: %s | Entries: %d | Final state: %s\n",
		strings.Join(parts, ", "), s.Total, state)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
