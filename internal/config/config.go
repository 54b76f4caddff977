// Package config reads the process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/rollcall/internal/archive"
	"github.com/dukerupert/rollcall/internal/scheduler"
)

// Vote store backends.
const (
	StoreSQLite = "sqlite"
	StoreSheets = "sheets"
)

// Error reports a missing or invalid setting.
type Error struct {
	Var string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Var, e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Var, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

type Sheets struct {
	CredentialsFile string
	SpreadsheetID   string
	Range           string
}

type Config struct {
	DiscordToken         string
	GuildID              string
	PollChannelID        string
	LeaderboardChannelID string

	Location     *time.Location
	TickInterval time.Duration
	Poll         scheduler.Trigger
	Leaderboard  scheduler.Trigger

	LogLevel  string
	LogFormat string
	Host      string
	Port      string
	DBPath    string

	// WSOrigins are the cross-origin host patterns allowed on /ws.
	WSOrigins []string

	VoteStore string
	Sheets    Sheets

	// OperatorTokenHash is a bcrypt hash. Empty disables the operator API.
	OperatorTokenHash string

	Archive archive.Config
}

// Load reads files (".env" when none are given) into the environment without
// overriding variables that are already set, then parses the environment.
// Missing files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Var: f, Msg: "cannot read env file", Err: err}
		}
	}
	return parse(os.Getenv)
}

func parse(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DiscordToken: env("DISCORD_TOKEN", ""),
		LogLevel:     env("ROLLCALL_LOG_LEVEL", "info"),
		LogFormat:    strings.ToLower(env("ROLLCALL_LOG_FORMAT", "text")),
		Host:         env("ROLLCALL_HOST", "127.0.0.1"),
		Port:         env("ROLLCALL_PORT", "8080"),
		WSOrigins:    splitList(env("ROLLCALL_WS_ORIGINS", "")),
		DBPath:       env("ROLLCALL_DB_PATH", "rollcall.db"),
		VoteStore:    strings.ToLower(env("VOTE_STORE", StoreSQLite)),
		Sheets: Sheets{
			CredentialsFile: env("SHEETS_CREDENTIALS_FILE", "credentials.json"),
			SpreadsheetID:   env("SHEETS_SPREADSHEET_ID", ""),
			Range:           env("SHEETS_RANGE", "Sheet1"),
		},
		OperatorTokenHash: env("OPERATOR_TOKEN_HASH", ""),
		Archive: archive.Config{
			Endpoint:   env("ARCHIVE_S3_ENDPOINT", ""),
			Bucket:     env("ARCHIVE_S3_BUCKET", ""),
			Region:     env("ARCHIVE_S3_REGION", "auto"),
			AccessKey:  env("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretKey:  env("ARCHIVE_S3_SECRET_KEY", ""),
			Passphrase: env("ARCHIVE_PASSPHRASE", ""),
		},
	}

	if cfg.DiscordToken == "" {
		return nil, &Error{Var: "DISCORD_TOKEN", Msg: "is required"}
	}

	ids := []struct {
		key string
		dst *string
	}{
		{"DISCORD_GUILD_ID", &cfg.GuildID},
		{"DISCORD_CHANNEL_ID", &cfg.PollChannelID},
		{"CHANNEL_ID_CLASSIFICA", &cfg.LeaderboardChannelID},
	}
	for _, id := range ids {
		v := env(id.key, "")
		if v == "" {
			return nil, &Error{Var: id.key, Msg: "is required"}
		}
		if _, err := strconv.ParseUint(v, 10, 64); err != nil {
			return nil, &Error{Var: id.key, Msg: "must be a numeric id", Err: err}
		}
		*id.dst = v
	}

	tz := env("ROLLCALL_TIMEZONE", "Europe/Rome")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &Error{Var: "ROLLCALL_TIMEZONE", Msg: "unknown zone", Err: err}
	}
	cfg.Location = loc

	tick, err := time.ParseDuration(env("ROLLCALL_TICK_INTERVAL", "1m"))
	if err != nil {
		return nil, &Error{Var: "ROLLCALL_TICK_INTERVAL", Msg: "invalid duration", Err: err}
	}
	if tick <= 0 || tick > time.Minute {
		return nil, &Error{Var: "ROLLCALL_TICK_INTERVAL", Msg: "must be positive and at most 1m"}
	}
	cfg.TickInterval = tick

	if cfg.Poll, err = trigger("POLL_WEEKDAYS", env("POLL_WEEKDAYS", "mon,tue,wed,thu"), "POLL_TIME", env("POLL_TIME", "12:00")); err != nil {
		return nil, err
	}
	if cfg.Leaderboard, err = trigger("LEADERBOARD_WEEKDAY", env("LEADERBOARD_WEEKDAY", "fri"), "LEADERBOARD_TIME", env("LEADERBOARD_TIME", "12:00")); err != nil {
		return nil, err
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, &Error{Var: "ROLLCALL_LOG_FORMAT", Msg: fmt.Sprintf("must be text or json, got %q", cfg.LogFormat)}
	}

	switch cfg.VoteStore {
	case StoreSQLite:
	case StoreSheets:
		if cfg.Sheets.SpreadsheetID == "" {
			return nil, &Error{Var: "SHEETS_SPREADSHEET_ID", Msg: "is required when VOTE_STORE=sheets"}
		}
	default:
		return nil, &Error{Var: "VOTE_STORE", Msg: fmt.Sprintf("must be sqlite or sheets, got %q", cfg.VoteStore)}
	}

	a := cfg.Archive
	if (a.Bucket != "" || a.AccessKey != "" || a.SecretKey != "") && !a.Enabled() {
		return nil, &Error{Var: "ARCHIVE_S3_BUCKET", Msg: "bucket, access key and secret key must be set together"}
	}

	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func trigger(daysVar, days, timeVar, clock string) (scheduler.Trigger, error) {
	weekdays, err := ParseWeekdays(days)
	if err != nil {
		return scheduler.Trigger{}, &Error{Var: daysVar, Msg: "invalid weekday list", Err: err}
	}
	at, err := time.Parse("15:04", clock)
	if err != nil {
		return scheduler.Trigger{}, &Error{Var: timeVar, Msg: "must be HH:MM", Err: err}
	}
	return scheduler.Trigger{Weekdays: weekdays, Hour: at.Hour(), Minute: at.Minute()}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays parses a comma-separated list such as "mon,tue,wed".
// Duplicates are dropped; order of first appearance is kept.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	seen := map[time.Weekday]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		d, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no weekdays")
	}
	return out, nil
}
