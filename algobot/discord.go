package algobot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// DefaultGatewayIntents covers everything the bot needs: guild
// metadata and the ability to post to guild channels.
var DefaultGatewayIntents = int(
	discordgo.IntentsGuilds | discordgo.IntentsGuildMessages,
)

const embedDescriptionLimit = 4096

var difficultyColors = map[string]int{
	DifficultyEasy:   0x00b8a3,
	DifficultyMedium: 0xffc01e,
	DifficultyHard:   0xff375f,
}

var difficultyEmoji = map[string]string{
	DifficultyEasy:   "\U0001f7e2",
	DifficultyMedium: "\U0001f7e1",
	DifficultyHard:   "\U0001f534",
}

// messageSender is the slice of discordgo.Session used for delivery.
type messageSender interface {
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Discord owns the gateway session and delivers daily-challenge
// announcements to guild channels.
type Discord struct {
	config  *DiscordConfig
	session *discordgo.Session
	sender  messageSender
	logger  *slog.Logger
}

func newDiscord(config *DiscordConfig) (*Discord, error) {
	handler := newTintHandler(config.LogLevel)
	d := &Discord{
		config: config,
		logger: slog.New(handler).With(loggerNameKey, "discord"),
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.SyncEvents = true
	session.StateEnabled = false
	session.Identify.Intents = discordgo.Intent(config.GatewayIntents)
	// Emit everything and let the slog handler's level do the filtering.
	session.LogLevel = discordgo.LogDebug
	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newTintHandler(config.DiscordGoLogLevel),
	)
	d.session = session
	d.sender = session
	return d, nil
}

// Open connects the gateway session.
func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	d.logger.Info("discord session open")
	return nil
}

// Close disconnects the gateway session.
func (d *Discord) Close() error {
	return d.session.Close()
}

// SendDailyChallenge posts the daily-challenge embed to a channel,
// mentioning roleID (if set) in the message body.
func (d *Discord) SendDailyChallenge(
	channelID string,
	roleID string,
	daily *DailyChallenge,
) error {
	if channelID == "" {
		return fmt.Errorf("no channel configured")
	}
	message := &discordgo.MessageSend{Embed: dailyChallengeEmbed(daily)}
	if roleID != "" {
		message.Content = fmt.Sprintf("<@&%s>", roleID)
	}
	sent, err := d.sender.ChannelMessageSendComplex(channelID, message)
	if err != nil {
		d.logger.Error(
			"error sending daily challenge",
			"channel_id", channelID,
			"date", daily.Date,
			tint.Err(err),
		)
		return err
	}
	d.logger.Info(
		"daily challenge delivered",
		"channel_id", channelID,
		"message_id", sent.ID,
		"date", daily.Date,
	)
	return nil
}

func dailyChallengeEmbed(daily *DailyChallenge) *discordgo.MessageEmbed {
	p := daily.Problem()

	title := p.Title
	if title == "" {
		title = p.Slug
	}
	color, ok := difficultyColors[p.Difficulty]
	if !ok {
		color = 0x5865f2
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Daily Challenge %s — %d. %s", daily.Date, p.ID, title),
		URL:         p.Link,
		Color:       color,
		Description: truncate(htmlToText(p.Content), embedDescriptionLimit),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("leetcode.%s", daily.Domain),
		},
	}

	difficulty := p.Difficulty
	if emoji, hasEmoji := difficultyEmoji[p.Difficulty]; hasEmoji {
		difficulty = emoji + " " + p.Difficulty
	}
	embed.Fields = append(
		embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Difficulty",
			Value:  difficulty,
			Inline: true,
		},
	)
	if p.Rating > 0 {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Rating",
				Value:  fmt.Sprintf("%.0f", p.Rating),
				Inline: true,
			},
		)
	}
	if p.AcRate > 0 {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Acceptance",
				Value:  fmt.Sprintf("%.1f%%", p.AcRate),
				Inline: true,
			},
		)
	}
	if len(p.Tags) > 0 {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Tags",
				Value: strings.Join(p.Tags, ", "),
			},
		)
	}
	return embed
}
