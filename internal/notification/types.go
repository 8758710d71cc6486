package notification

import "encoding/json"

// Severity is a Run's notification severity level, derived from its
// terminal status: success -> info, partial_success -> warning,
// failure -> error (spec §4.9).
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// level orders severities so a recipient's min_severity can be compared
// against the Run's actual severity: a recipient only hears about a Run
// whose severity is at or above what they asked for.
func (s Severity) level() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	default:
		return 0
	}
}

// Recipient is one entry in a channel's recipients list. Only one of
// ChatID/To is populated, depending on the channel.
type Recipient struct {
	ChatID      string   `json:"chat_id,omitempty"`
	To          string   `json:"to,omitempty"`
	MinSeverity Severity `json:"min_severity"`
}

// ChannelConfig is one channel's settings within a schedule's
// `notifications` blob.
type ChannelConfig struct {
	Enabled      bool        `json:"enabled"`
	Recipients   []Recipient `json:"recipients"`
	AttachBackup bool        `json:"attach_backup"`
	AttachMaxMB  int         `json:"attach_max_mb"`
}

// NotificationsConfig is the decoded shape of a Schedule's `notifications`
// sub-object (itself nested inside the schedule's `retention` blob — see
// internal/scheduler.Policy).
type NotificationsConfig struct {
	Telegram ChannelConfig `json:"telegram"`
	Email    ChannelConfig `json:"email"`
}

// ParseNotifications decodes raw (nil or empty means no notifications
// configured for this run) into a NotificationsConfig.
func ParseNotifications(raw json.RawMessage) (NotificationsConfig, error) {
	var cfg NotificationsConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return NotificationsConfig{}, err
	}
	return cfg, nil
}
