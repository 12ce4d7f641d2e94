// Package models holds the login lockout record shared by the stores and the
// service.
package models

import (
	"strings"
	"time"
)

// Lockout is the failure history of one email and client address pair.
type Lockout struct {
	Key         string     `json:"key"`
	Failures    int        `json:"failures"`
	WindowEnds  time.Time  `json:"window_ends"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// NewLockoutKey builds the store key for a login attempt. Segments are
// sanitized so an email containing ':' cannot address another pair's record.
func NewLockoutKey(email, ip string) string {
	return sanitizeKeySegment(strings.ToLower(strings.TrimSpace(email))) + ":" + sanitizeKeySegment(ip)
}

func sanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

func (l *Lockout) IsLockedAt(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// ShouldLock reports whether the failures in the current window reached limit.
func (l *Lockout) ShouldLock(limit int) bool {
	return l != nil && limit > 0 && l.Failures >= limit
}

// RemainingAttempts is how many more failures the window tolerates.
func (l *Lockout) RemainingAttempts(limit int) int {
	if l == nil {
		return limit
	}
	return max(limit-l.Failures, 0)
}
