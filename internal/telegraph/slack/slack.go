// Package slack implements the telegraph Sender for Slack via the Web API.
package slack

import (
	"fmt"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/switchboard/internal/telegraph"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sender implements telegraph.Sender for Slack.
type Sender struct {
	client    slackClient
	channelID string
}

// Opts holds parameters for creating a Slack Sender.
type Opts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post digests to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Sender.
func New(opts Opts) (*Sender, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	client := opts.Client
	if client == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("slack: bot token is required")
		}
		client = slackapi.New(opts.BotToken)
	}
	return &Sender{client: client, channelID: opts.ChannelID}, nil
}

// Send posts the digest as an attachment with a severity sidebar color.
func (s *Sender) Send(d telegraph.Digest) error {
	attachment := slackapi.Attachment{
		Title: d.Title,
		Text:  d.Body,
		Color: telegraph.SeverityColor(d.Severity),
	}
	for _, f := range d.Fields {
		attachment.Fields = append(attachment.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: true,
		})
	}

	if _, _, err := s.client.PostMessage(s.channelID, slackapi.MsgOptionAttachments(attachment)); err != nil {
		return fmt.Errorf("slack: post digest: %w", err)
	}
	return nil
}

// Close is a no-op: the Web API client holds no connection.
func (s *Sender) Close() error { return nil }
