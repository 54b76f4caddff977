// Package scoring turns the vote log into a ranked attendance leaderboard.
// Everything here is pure: no I/O, no shared state.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

const (
	// MissingPenalty is scored by a roster member with no vote for the day and
	// by any vote cast after LateCutoff.
	MissingPenalty = -2.0

	// EarlyCutoff is the last hour (inclusive) that earns EarlyBonus.
	EarlyCutoff = 15.0
	// LateCutoff is the last hour (inclusive) a vote is scored on its choice.
	LateCutoff = 20.0
	EarlyBonus = 1.0
)

// Header is the first line of a rendered leaderboard.
const Header = "**📊 Classifica presenze settimanale:**"

// Points is the contribution of a single vote cast at t.
func Points(c model.Choice, t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	var bonus float64
	switch {
	case h <= EarlyCutoff:
		bonus = EarlyBonus
	case h <= LateCutoff:
		bonus = 0
	default:
		return MissingPenalty
	}
	return c.BaseValue() + bonus
}

// SameDate reports whether a and b fall on the same calendar date in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Compute scores the records cast on day's calendar date (in day's location)
// and penalizes every roster member who cast none. Every vote is scored on
// its own, so repeated votes by one member on the same day add up.
//
// Entries are sorted by total descending; ties keep first-seen order, where
// voters are seen in log order and then non-voting members in roster order.
func Compute(records []model.VoteRecord, roster []model.Member, day time.Time) []model.LeaderboardEntry {
	loc := day.Location()
	totals := make(map[string]float64)
	var order []string
	add := func(name string, pts float64) {
		if _, ok := totals[name]; !ok {
			order = append(order, name)
		}
		totals[name] += pts
	}

	voted := make(map[string]bool)
	for _, r := range records {
		if !SameDate(r.Timestamp, day, loc) {
			continue
		}
		voted[r.Voter] = true
		add(r.Voter, Points(r.Choice, r.Timestamp.In(loc)))
	}

	for _, m := range roster {
		if voted[m.Name] {
			continue
		}
		add(m.Name, MissingPenalty)
	}

	entries := make([]model.LeaderboardEntry, len(order))
	for i, name := range order {
		entries[i] = model.LeaderboardEntry{Member: name, TotalPoints: totals[name]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPoints > entries[j].TotalPoints
	})
	return entries
}

// Render formats entries as a 1-indexed listing with one decimal place.
func Render(entries []model.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s: %.1f punti\n", i+1, e.Member, e.TotalPoints)
	}
	return b.String()
}
