package model

import (
	"errors"
	"strings"
	"time"
)

// ErrUnrecognizedChoice is reported when a stored vote carries a value outside
// the closed Choice set. Such votes still count as "voted" but score zero base.
var ErrUnrecognizedChoice = errors.New("unrecognized vote choice")

// Choice is the option a member picked on the daily prompt. The string value
// is the wire identifier stored in the vote log and used as button id.
type Choice string

const (
	ChoicePresent Choice = "presente"
	ChoiceLate    Choice = "ritardo"
	ChoiceAbsent  Choice = "assente"
)

// Choices lists the options in the order they are presented.
var Choices = []Choice{ChoicePresent, ChoiceLate, ChoiceAbsent}

// ParseChoice maps a raw value (case-insensitive, surrounding space ignored)
// onto a Choice.
func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ChoicePresent, ChoiceLate, ChoiceAbsent:
		return c, nil
	}
	return c, ErrUnrecognizedChoice
}

// Valid reports whether c is one of the known options.
func (c Choice) Valid() bool {
	_, err := ParseChoice(string(c))
	return err == nil
}

// BaseValue returns the points a vote is worth before the time-of-day bonus.
// Unknown choices are worth nothing.
func (c Choice) BaseValue() float64 {
	switch c {
	case ChoicePresent:
		return 3
	case ChoiceLate:
		return 1.5
	default:
		return 0
	}
}

// Label is the button caption shown on the prompt.
func (c Choice) Label() string {
	switch c {
	case ChoicePresent:
		return "✅ Presente"
	case ChoiceLate:
		return "🕒 Ritardo"
	case ChoiceAbsent:
		return "❌ Assente"
	default:
		return string(c)
	}
}

// VoteRecord is one immutable entry of the vote log. Timestamp is a civil
// time in the reference zone with minute precision.
type VoteRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Voter     string    `json:"voter"`
	Choice    Choice    `json:"choice"`
}

// Member is a roster entry.
type Member struct {
	Name string `json:"name"`
}

// LeaderboardEntry is a member's total for the scored day.
type LeaderboardEntry struct {
	Member      string  `json:"member"`
	TotalPoints float64 `json:"total_points"`
}
