package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/dbsentinel/dbsentinel/internal/retention"
)

// Policy decodes a Schedule's opaque `retention` JSON column (spec §3):
// despite the field name, it carries run_at_time, the one-of retention
// mode, encryption settings, and notification overrides all nested
// together in one blob.
type Policy struct {
	RunAtTime       *string         `json:"run_at_time,omitempty"`
	MaxCount        *int            `json:"max_count,omitempty"`
	MaxDays         *int            `json:"max_days,omitempty"`
	MaxSizeMB       *int            `json:"max_size_mb,omitempty"`
	Smart           *SmartPolicy    `json:"smart,omitempty"`
	Encrypt         bool            `json:"encrypt,omitempty"`
	EncryptPassword string          `json:"encrypt_password,omitempty"`
	Notifications   json.RawMessage `json:"notifications,omitempty"`
}

// SmartPolicy mirrors retention.Smart for JSON decoding.
type SmartPolicy struct {
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
	Yearly  int `json:"yearly"`
}

// ParsePolicy decodes a Schedule.RetentionJSON blob.
func ParsePolicy(raw string) (Policy, error) {
	var p Policy
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Policy{}, fmt.Errorf("scheduler: decoding schedule policy: %w", err)
	}
	return p, nil
}

// RetentionPolicy projects the one-of retention mode fields into the shape
// internal/retention.Evaluate expects.
func (p Policy) RetentionPolicy() retention.Policy {
	rp := retention.Policy{MaxCount: p.MaxCount, MaxDays: p.MaxDays, MaxSizeMB: p.MaxSizeMB}
	if p.Smart != nil {
		rp.Smart = &retention.Smart{
			Daily: p.Smart.Daily, Weekly: p.Smart.Weekly,
			Monthly: p.Smart.Monthly, Yearly: p.Smart.Yearly,
		}
	}
	return rp
}
