// Package discord is the chat surface: it posts prompts and leaderboards,
// lists the guild roster and turns button clicks into votes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dukerupert/rollcall/internal/model"
)

// TestCommand re-sends the prompt on demand.
const TestCommand = "!test_sondaggio"

const (
	memberPageSize = 1000
	channelMissing = "Canale non trovato."

	// Discord drops interactions not answered within three seconds.
	deferTimeout = 2 * time.Second
	replyTimeout = 10 * time.Second
)

// VoteHandler receives the interactions the bot accepts.
type VoteHandler interface {
	HandleVote(ctx context.Context, voter, choiceID string, arrivedAt time.Time) string
	ManualPrompt(ctx context.Context) error
}

// session is the part of *discordgo.Session the bot calls.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot implements the engine's Notifier and Roster over a Discord session.
type Bot struct {
	dg      *discordgo.Session
	session session
	guildID string
	handler VoteHandler
	// timeout bounds the work behind one interaction or command.
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a bot session for token. Call Handle before Open.
func New(token, guildID string, logger *slog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		dg:      dg,
		session: dg,
		guildID: guildID,
		timeout: 15 * time.Second,
		now:     time.Now,
		logger:  logger,
	}
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("bot online", "user", r.User.Username)
	})
	dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.onInteraction(i)
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.onMessage(m)
	})
	return b, nil
}

// Handle sets the receiver of votes and commands.
func (b *Bot) Handle(h VoteHandler) {
	b.handler = h
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if b.handler == nil {
		return errors.New("discord: no vote handler set")
	}
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.dg.Close()
}

// PromptComponents builds one button per choice.
func PromptComponents(choices []model.Choice) []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(choices))
	for _, c := range choices {
		buttons = append(buttons, discordgo.Button{
			Label:    c.Label(),
			Style:    buttonStyle(c),
			CustomID: string(c),
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func buttonStyle(c model.Choice) discordgo.ButtonStyle {
	switch c {
	case model.ChoicePresent:
		return discordgo.SuccessButton
	case model.ChoiceAbsent:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

// PostPrompt sends title with one button per choice.
func (b *Bot) PostPrompt(ctx context.Context, channelID, title string, choices []model.Choice) error {
	_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    title,
		Components: PromptComponents(choices),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send prompt to %s: %w", channelID, err)
	}
	return nil
}

// PostMessage sends plain text.
func (b *Bot) PostMessage(ctx context.Context, channelID, text string) error {
	if _, err := b.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}

// ListMembers pages through the guild and returns every human member.
func (b *Bot) ListMembers(ctx context.Context) ([]model.Member, error) {
	var out []model.Member
	after := ""
	for {
		page, err := b.session.GuildMembers(b.guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}
		for _, m := range page {
			if m.User == nil || m.User.Bot {
				continue
			}
			out = append(out, model.Member{Name: m.User.Username})
		}
		if len(page) < memberPageSize {
			return out, nil
		}
		last := page[len(page)-1]
		if last.User == nil {
			return out, nil
		}
		after = last.User.ID
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) onInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || b.handler == nil {
		return
	}
	user := interactionUser(i.Interaction)
	if user == nil {
		b.logger.Warn("interaction without user", "id", i.ID)
		return
	}
	arrived := b.now()
	choiceID := i.MessageComponentData().CustomID

	// Defer first so a slow vote store cannot miss the interaction deadline.
	deferCtx, cancelDefer := context.WithTimeout(context.Background(), deferTimeout)
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(deferCtx))
	cancelDefer()
	if err != nil {
		b.logger.Error("defer vote reply", "voter", user.Username, "error", err)
	}

	voteCtx, cancelVote := context.WithTimeout(context.Background(), b.timeout)
	ack := b.handler.HandleVote(voteCtx, user.Username, choiceID, arrived)
	cancelVote()

	replyCtx, cancelReply := context.WithTimeout(context.Background(), replyTimeout)
	defer cancelReply()
	_, err = b.session.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: ack,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(replyCtx))
	if err != nil {
		b.logger.Error("acknowledge vote", "voter", user.Username, "error", err)
	}
}

func (b *Bot) onMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || b.handler == nil {
		return
	}
	if strings.TrimSpace(m.Content) != TestCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	b.logger.Info("manual prompt requested", "by", m.Author.Username)
	err := b.handler.ManualPrompt(ctx)
	cancel()
	if err == nil {
		return
	}
	b.logger.Error("manual prompt", "error", err)

	replyCtx, cancelReply := context.WithTimeout(context.Background(), replyTimeout)
	defer cancelReply()
	if _, err := b.session.ChannelMessageSend(m.ChannelID, channelMissing, discordgo.WithContext(replyCtx)); err != nil {
		b.logger.Error("reply to command", "error", err)
	}
}
