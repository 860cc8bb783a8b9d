package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReplayFilter holds filtering criteria for session replay.
type ReplayFilter struct {
	SessionID string    // empty = all sessions
	Kind      string    // empty = all kinds
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// ReplaySummary holds outcome counts and metadata for a replayed session.
type ReplaySummary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	DenyCount      int    `json:"deny_count"`
	EscalateCount  int    `json:"escalate_count"`
	RejectedCount  int    `json:"rejected_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	FinalState     string `json:"final_state,omitempty"`
}

// ReplayResult holds filtered entries and summary for a session replay.
type ReplayResult struct {
	SessionID string        `json:"session_id"`
	Entries   []Entry       `json:"entries"`
	Summary   ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	result := &ReplayResult{SessionID: filter.SessionID}

	err := scan(path, func(entry Entry) {
		if !filter.match(entry) {
			return
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Tail returns the last n entries of the log in file order.
// n <= 0 returns every entry.
func Tail(path string, n int) ([]Entry, error) {
	var out []Entry
	err := scan(path, func(entry Entry) {
		out = append(out, entry)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scan(path string, fn func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		fn(entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	return nil
}

func (f ReplayFilter) match(entry Entry) bool {
	if f.SessionID != "" && entry.SessionID != f.SessionID {
		return false
	}
	if f.Kind != "" && entry.Kind != f.Kind {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, entry.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func updateSummary(s *ReplaySummary, entry Entry) {
	s.Total++

	// Verdict counts come from final decisions only; each transition attempt
	// also logs a validation entry that would otherwise be counted twice.
	switch {
	case entry.Kind == KindDecision:
		switch entry.Outcome {
		case "ALLOW":
			s.AllowCount++
		case "DENY":
			s.DenyCount++
		case "ESCALATE":
			s.EscalateCount++
		}
	case entry.Kind == KindTransition && entry.Outcome == "REJECTED":
		s.RejectedCount++
	}

	if entry.Kind == KindDecision && entry.Outcome != "DENY" && entry.StateTo != "" {
		s.FinalState = entry.StateTo
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
