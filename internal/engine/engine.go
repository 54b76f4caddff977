// Package engine wires the scheduler, the vote log, the roster and the chat
// surface together: it posts the daily prompt, records votes as they arrive
// and publishes the weekly leaderboard.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/rollcall/internal/archive"
	"github.com/dukerupert/rollcall/internal/model"
	"github.com/dukerupert/rollcall/internal/scheduler"
	"github.com/dukerupert/rollcall/internal/scoring"
	"github.com/dukerupert/rollcall/internal/votelog"
	"github.com/dukerupert/rollcall/internal/websocket"
)

var (
	ErrStoreUnavailable  = errors.New("vote store unavailable")
	ErrRosterUnavailable = errors.New("roster unavailable")
	ErrDelivery          = errors.New("notifier delivery failed")
)

// Scheduled action names.
const (
	ActionDailyPoll         = "daily_poll"
	ActionWeeklyLeaderboard = "weekly_leaderboard"
)

// Prompt titles.
const (
	PromptTitle     = "**📋 Vota la tua presenza di oggi!**\n\nScegli tra le opzioni qui sotto:"
	TestPromptTitle = "**📋 Test sondaggio presenza**\n\nScegli tra le opzioni qui sotto:"
)

// VoteStore is the durable vote log.
type VoteStore interface {
	AppendRecord(ctx context.Context, timestamp, voter, choice string) error
	ReadAllRecords(ctx context.Context) ([]votelog.Row, error)
}

// Roster lists the current non-service members of the group.
type Roster interface {
	ListMembers(ctx context.Context) ([]model.Member, error)
}

// Notifier delivers prompts and messages to a channel.
type Notifier interface {
	PostPrompt(ctx context.Context, channelID, title string, choices []model.Choice) error
	PostMessage(ctx context.Context, channelID, text string) error
}

// Archiver keeps a copy of published leaderboards.
type Archiver interface {
	Archive(ctx context.Context, snap archive.Snapshot) error
}

// Broadcaster pushes live events to dashboards.
type Broadcaster interface {
	Broadcast(ev websocket.Event)
}

// Deps are the collaborators of an Engine. Archiver and Events are optional.
type Deps struct {
	Votes    VoteStore
	Roster   Roster
	Notifier Notifier
	Archiver Archiver
	Events   Broadcaster

	Location           *time.Location
	PollChannelID      string
	LeaderboardChannel string

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Engine is the orchestrator. All methods are safe for concurrent use; the
// only state it holds is its immutable configuration.
type Engine struct {
	votes    VoteStore
	roster   Roster
	notifier Notifier
	archiver Archiver
	events   Broadcaster

	loc          *time.Location
	pollChannel  string
	boardChannel string
	now          func() time.Time
	logger       *slog.Logger
}

func New(d Deps) (*Engine, error) {
	if d.Votes == nil || d.Roster == nil || d.Notifier == nil {
		return nil, errors.New("engine: votes, roster and notifier are required")
	}
	if d.Location == nil {
		return nil, errors.New("engine: location is required")
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Engine{
		votes:        d.Votes,
		roster:       d.Roster,
		notifier:     d.Notifier,
		archiver:     d.Archiver,
		events:       d.Events,
		loc:          d.Location,
		pollChannel:  d.PollChannelID,
		boardChannel: d.LeaderboardChannel,
		now:          d.Clock,
		logger:       d.Logger,
	}, nil
}

func (e *Engine) broadcast(kind string, data map[string]any) {
	if e.events != nil {
		e.events.Broadcast(websocket.NewEvent(kind, e.now().In(e.loc), data))
	}
}

// Register configures the two recurring actions on s.
func (e *Engine) Register(s *scheduler.Scheduler, poll, board scheduler.Trigger) error {
	if err := s.Configure(ActionDailyPoll, poll, e.DailyPrompt); err != nil {
		return err
	}
	return s.Configure(ActionWeeklyLeaderboard, board, e.WeeklyLeaderboard)
}

// DailyPrompt posts the voting options to the poll channel.
func (e *Engine) DailyPrompt(ctx context.Context) error {
	return e.prompt(ctx, PromptTitle)
}

// ManualPrompt re-sends the prompt on operator request, bypassing the
// scheduler. It records nothing.
func (e *Engine) ManualPrompt(ctx context.Context) error {
	return e.prompt(ctx, TestPromptTitle)
}

func (e *Engine) prompt(ctx context.Context, title string) error {
	if err := e.notifier.PostPrompt(ctx, e.pollChannel, title, model.Choices); err != nil {
		return fmt.Errorf("%w: post prompt to %s: %v", ErrDelivery, e.pollChannel, err)
	}
	now := e.now().In(e.loc)
	e.logger.Info("prompt posted", "channel", e.pollChannel, "date", now.Format(time.DateOnly))
	e.broadcast(websocket.EventPromptPosted, map[string]any{"channel": e.pollChannel})
	return nil
}

// Acknowledgement is the reply shown to a voter.
func Acknowledgement(choiceID string) string {
	return fmt.Sprintf("Hai selezionato **%s**. Grazie per aver votato! ✅", strings.ToUpper(choiceID))
}

// HandleVote records a vote that arrived at arrivedAt and returns the text to
// acknowledge it with. The acknowledgement is returned even when the store
// rejects the append; that failure is only logged.
func (e *Engine) HandleVote(ctx context.Context, voter, choiceID string, arrivedAt time.Time) string {
	ts := votelog.FormatTimestamp(arrivedAt, e.loc)
	if !model.Choice(choiceID).Valid() {
		e.logger.Warn("vote with unrecognized choice", "voter", voter, "choice", choiceID)
	}

	if err := e.votes.AppendRecord(ctx, ts, voter, choiceID); err != nil {
		e.logger.Error("append vote", "voter", voter, "choice", choiceID, "timestamp", ts,
			"error", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	} else {
		e.logger.Info("vote recorded", "voter", voter, "choice", choiceID, "timestamp", ts)
		e.broadcast(websocket.EventVoteRecorded, map[string]any{"voter": voter, "choice": choiceID, "timestamp": ts})
	}
	return Acknowledgement(choiceID)
}

// Board is a computed leaderboard.
type Board struct {
	Date    time.Time
	Entries []model.LeaderboardEntry
	Text    string
	Records []model.VoteRecord
	Skipped int
}

// Leaderboard reads the vote log and the roster and scores today's votes.
// Nothing is published.
func (e *Engine) Leaderboard(ctx context.Context) (*Board, error) {
	rows, err := e.votes.ReadAllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	records, skipped := votelog.Normalize(rows, e.loc)
	for _, s := range skipped {
		e.logger.Warn("skipping vote row", "error", s)
	}

	members, err := e.roster.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRosterUnavailable, err)
	}

	now := e.now().In(e.loc)
	entries := scoring.Compute(records, members, now)
	return &Board{
		Date:    now,
		Entries: entries,
		Text:    scoring.Render(entries),
		Records: todays(records, now, e.loc),
		Skipped: len(skipped),
	}, nil
}

func todays(records []model.VoteRecord, day time.Time, loc *time.Location) []model.VoteRecord {
	var out []model.VoteRecord
	for _, r := range records {
		if scoring.SameDate(r.Timestamp, day, loc) {
			out = append(out, r)
		}
	}
	return out
}

// WeeklyLeaderboard computes and publishes the leaderboard. On store or
// roster failure nothing is published. Returned errors are left to the
// caller to log.
func (e *Engine) WeeklyLeaderboard(ctx context.Context) error {
	board, err := e.Leaderboard(ctx)
	if err != nil {
		return fmt.Errorf("compute leaderboard: %w", err)
	}

	if err := e.notifier.PostMessage(ctx, e.boardChannel, board.Text); err != nil {
		return fmt.Errorf("%w: publish leaderboard to %s: %v", ErrDelivery, e.boardChannel, err)
	}
	e.logger.Info("leaderboard published",
		"channel", e.boardChannel,
		"date", board.Date.Format(time.DateOnly),
		"entries", len(board.Entries),
		"skipped_rows", board.Skipped,
	)
	e.broadcast(websocket.EventLeaderboardPublished, map[string]any{
		"date":    board.Date.Format(time.DateOnly),
		"entries": board.Entries,
	})

	if e.archiver != nil {
		snap := archive.Snapshot{
			Date:        board.Date.Format(time.DateOnly),
			PublishedAt: board.Date,
			Text:        board.Text,
			Entries:     board.Entries,
			Records:     board.Records,
			Skipped:     board.Skipped,
		}
		if err := e.archiver.Archive(ctx, snap); err != nil {
			e.logger.Warn("archive leaderboard", "error", err)
		}
	}
	return nil
}
