package model

import (
	"fmt"
	"strings"
	"time"
)

// Level is a user tier. Tiers are totally ordered: basic < silver < gold < platinum.
type Level string

// User levels.
const (
	LevelBasic    Level = "basic"
	LevelSilver   Level = "silver"
	LevelGold     Level = "gold"
	LevelPlatinum Level = "platinum"
)

var levelRanks = map[Level]int{
	LevelBasic:    0,
	LevelSilver:   1,
	LevelGold:     2,
	LevelPlatinum: 3,
}

// Levels returns all levels in ascending order.
func Levels() []Level {
	return []Level{LevelBasic, LevelSilver, LevelGold, LevelPlatinum}
}

// ParseLevel converts a case-insensitive name into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRanks[l]; !ok {
		return "", fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}

// Rank returns the position of the level in the tier order.
// Unknown values rank below basic.
func (l Level) Rank() int {
	if r, ok := levelRanks[l]; ok {
		return r
	}
	return -1
}

// Satisfies reports whether a user at level l may take a task requiring level required.
func (l Level) Satisfies(required Level) bool {
	return l.Rank() >= required.Rank()
}

// UserTaskStatus is the state of a task attempt.
type UserTaskStatus string

// Attempt states.
const (
	StatusTaken     UserTaskStatus = "taken"
	StatusSubmitted UserTaskStatus = "submitted"
	StatusApproved  UserTaskStatus = "approved"
	StatusRejected  UserTaskStatus = "rejected"
	StatusRevision  UserTaskStatus = "revision"
	StatusExpired   UserTaskStatus = "expired"
)

// ActiveStatuses are the non-terminal states. A user holds at most one
// attempt per task in any of them.
func ActiveStatuses() []UserTaskStatus {
	return []UserTaskStatus{StatusTaken, StatusSubmitted, StatusRevision}
}

// IsTerminal reports whether no further transition is possible.
func (s UserTaskStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// CanSubmit reports whether proof may be submitted in this state.
func (s UserTaskStatus) CanSubmit() bool {
	return s == StatusTaken || s == StatusRevision
}

// transitions lists every allowed edge of the attempt state machine.
var transitions = map[UserTaskStatus][]UserTaskStatus{
	StatusTaken:     {StatusSubmitted, StatusExpired},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusRevision},
	StatusRevision:  {StatusSubmitted},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s UserTaskStatus) CanTransitionTo(next UserTaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReviewDecision is an admin verdict on a submitted attempt.
type ReviewDecision string

// Review decisions.
const (
	DecisionApprove  ReviewDecision = "approve"
	DecisionReject   ReviewDecision = "reject"
	DecisionRevision ReviewDecision = "revision"
)

// TargetStatus returns the state a submitted attempt moves to.
func (d ReviewDecision) TargetStatus() (UserTaskStatus, error) {
	switch d {
	case DecisionApprove:
		return StatusApproved, nil
	case DecisionReject:
		return StatusRejected, nil
	case DecisionRevision:
		return StatusRevision, nil
	default:
		return "", fmt.Errorf("unknown review decision %q", d)
	}
}

// AttemptDeadline computes expires_at for an attempt taken at takenAt.
// A task without its own time limit uses fallback.
func AttemptDeadline(takenAt time.Time, timeLimitHours *int, fallback time.Duration) time.Time {
	if timeLimitHours != nil && *timeLimitHours > 0 {
		return takenAt.Add(time.Duration(*timeLimitHours) * time.Hour)
	}
	return takenAt.Add(fallback)
}
