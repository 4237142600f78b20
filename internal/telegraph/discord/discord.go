// Package discord implements the telegraph Sender for Discord.
package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/switchboard/internal/telegraph"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Sender implements telegraph.Sender for Discord.
type Sender struct {
	sess      session
	channelID string
}

// Opts holds parameters for creating a Discord Sender.
type Opts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real gateway.
	Session session
}

// New creates a Discord Sender.
func New(opts Opts) (*Sender, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("discord: bot token is required")
		}
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = dg
	}
	return &Sender{sess: sess, channelID: opts.ChannelID}, nil
}

// Send posts the digest as an embed with a severity color.
func (s *Sender) Send(d telegraph.Digest) error {
	embed := &discordgo.MessageEmbed{
		Title:       d.Title,
		Description: d.Body,
		Color:       hexColor(telegraph.SeverityColor(d.Severity)),
	}
	for _, f := range d.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}

	if _, err := s.sess.ChannelMessageSendEmbed(s.channelID, embed); err != nil {
		return fmt.Errorf("discord: post digest: %w", err)
	}
	return nil
}

// Close shuts down the session.
func (s *Sender) Close() error {
	return s.sess.Close()
}

// hexColor converts "#rrggbb" to the integer form Discord embeds use.
func hexColor(c string) int {
	n, err := strconv.ParseInt(strings.TrimPrefix(c, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
