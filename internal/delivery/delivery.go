// Package delivery renders new feed items and hands them to the
// messaging gateway, pacing sends to stay under rate limits.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"rsscord/internal/model"
)

// defaultPacing is the minimum spacing between two sends of the same
// subscription's batch.
const defaultPacing = 1 * time.Second

// Sender is the messaging gateway seen by the pipeline.
type Sender interface {
	SendEmbed(channelID, content string, embed *discordgo.MessageEmbed) error
	SendText(channelID, text string) error
}

// Pipeline delivers batches of new items to a channel.
type Pipeline struct {
	sender Sender
	log    *slog.Logger
	pacing time.Duration
}

// New creates a Pipeline with the default pacing delay.
func New(sender Sender, log *slog.Logger) *Pipeline {
	return &Pipeline{
		sender: sender,
		log:    log,
		pacing: defaultPacing,
	}
}

// SetPacing overrides the spacing between sends (useful for testing).
func (p *Pipeline) SetPacing(d time.Duration) {
	p.pacing = d
}

// Deliver sends items, already in oldest-first order, to the
// subscription's channel. A failed embed send is retried once as plain
// text; if that also fails the item is logged as dropped and the batch
// continues. Returns the number of items that reached the gateway.
func (p *Pipeline) Deliver(ctx context.Context, sub model.Subscription, feedTitle string, items []model.Item) int {
	delivered := 0
	mention := MentionPrefix(sub)

	for i, item := range items {
		if i > 0 {
			if !sleepCtx(ctx, p.pacing) {
				return delivered
			}
		}

		embed := BuildEmbed(feedTitle, item)
		err := p.sender.SendEmbed(sub.ChannelID, mention, embed)
		if err == nil {
			delivered++
			continue
		}
		p.log.Warn("embed send failed, falling back to text",
			"subscription_id", sub.ID, "channel_id", sub.ChannelID, "item", item.Key, "error", err)

		text := FallbackText(feedTitle, item)
		if mention != "" {
			text = mention + " " + text
		}
		if err := p.sender.SendText(sub.ChannelID, text); err != nil {
			p.log.Error("item dropped, fallback send failed",
				"subscription_id", sub.ID, "channel_id", sub.ChannelID, "item", item.Key, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
