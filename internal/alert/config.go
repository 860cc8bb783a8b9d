// Package alert notifies humans over webhooks when a session decision needs
// their attention.
package alert

import (
	"fmt"

	"github.com/ppiankov/humanloop/internal/model"
)

// Payload formats.
const (
	FormatGeneric   = "generic"
	FormatSlack     = "slack"
	FormatPagerDuty = "pagerduty"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // decisions, e.g. ["ESCALATE", "DENY"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Validate checks the destination is usable.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("alert: url is required")
	}
	switch c.Format {
	case "", FormatGeneric, FormatSlack, FormatPagerDuty:
	default:
		return fmt.Errorf("alert: unknown format %q (want generic|slack|pagerduty)", c.Format)
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("alert: %s: at least one event is required", c.URL)
	}
	for _, e := range c.Events {
		if _, err := model.ParseDecision(e); err != nil {
			return fmt.Errorf("alert: %s: %w", c.URL, err)
		}
	}
	return nil
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"session_id"`
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	Zone       string `json:"zone"`
	Target     string `json:"target,omitempty"`
	Transition string `json:"transition"`
	StateFrom  string `json:"state_from"`
	StateTo    string `json:"state_to,omitempty"`
	Decision   string `json:"decision"`
	RuleID     string `json:"rule_id"`
	Reason     string `json:"reason"`
}

// FromDecision builds an event for a session decision. stateTo is empty
// when the session did not advance.
func FromDecision(sessionID string, req model.ActionRequest, d model.DecisionResult, stateTo model.WorkflowState) Event {
	t := d.Context.Transition.Request
	return Event{
		SessionID:  sessionID,
		Actor:      d.Context.ActorKind.String(),
		Action:     req.ActionType.String(),
		Zone:       req.TrustZone.String(),
		Target:     req.Target,
		Transition: t.Transition.String(),
		StateFrom:  t.CurrentState.String(),
		StateTo:    stateTo.String(),
		Decision:   d.Decision.String(),
		RuleID:     d.RuleID,
		Reason:     d.Reason,
	}
}
