package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case FormatSlack:
		return formatSlack(event)
	case FormatPagerDuty:
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	move := event.StateFrom
	if event.StateTo != "" {
		move += " -> " + event.StateTo
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("humanloop: %s", event.Decision),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.SessionID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s from %s", event.Action, event.Zone)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Transition:* %s by %s (%s)", event.Transition, event.Actor, move)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("humanloop %s: %s %s", event.Decision, event.Action, event.Target),
			"severity": severityFor(event.Decision),
			"source":   "humanloop",
			"custom_details": map[string]any{
				"session_id": event.SessionID,
				"actor":      event.Actor,
				"zone":       event.Zone,
				"transition": event.Transition,
				"rule_id":    event.RuleID,
				"reason":     event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(decision string) string {
	switch decision {
	case "DENY":
		return "error"
	case "ESCALATE":
		return "warning"
	default:
		return "info"
	}
}
