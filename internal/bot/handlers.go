package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"rsscord/internal/model"
	"rsscord/internal/storage"
)

const embedColor = 0x0099FF

// panelLimit caps how many feeds get their own button row; Discord
// allows at most 5 component rows per message.
const panelLimit = 5

func (b *Bot) handleAdd(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	url := ""
	channelID := i.ChannelID
	roleID := ""
	for _, opt := range data.Options {
		switch opt.Name {
		case "url":
			url = opt.StringValue()
		case "channel":
			channelID = opt.ChannelValue(nil).ID
		case "role":
			roleID = opt.RoleValue(nil, "").ID
		}
	}

	if !strings.HasPrefix(url, "http") {
		b.respondText(i.Interaction, "Please provide a valid URL.", true)
		return
	}

	// Fetching can take a while, so acknowledge first.
	b.deferReply(i.Interaction)

	if _, err := b.fetcher.Fetch(ctx, url); err != nil {
		b.editReplyText(i.Interaction, fmt.Sprintf("Could not fetch the feed: %v", err))
		return
	}

	sub := &model.Subscription{
		URL:       url,
		GuildID:   i.GuildID,
		ChannelID: channelID,
		RolePing:  roleID,
	}
	if err := b.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrDuplicateSubscription) {
			b.editReplyText(i.Interaction, "This feed is already subscribed in that channel.")
			return
		}
		b.log.Error("create subscription", "url", url, "error", err)
		b.editReplyText(i.Interaction, "Could not save the subscription.")
		return
	}

	b.editReplyText(i.Interaction, fmt.Sprintf(
		"Feed added.\n**URL:** %s\n**Channel:** <#%s>\n**ID:** %d", url, channelID, sub.ID))
}

func (b *Bot) handleList(ctx context.Context, i *discordgo.InteractionCreate) {
	subs, err := b.store.ListSubscriptions(ctx, i.GuildID)
	if err != nil {
		b.log.Error("list subscriptions", "guild_id", i.GuildID, "error", err)
		b.respondText(i.Interaction, "Could not load the feed list.", true)
		return
	}
	if len(subs) == 0 {
		b.respondText(i.Interaction, "No feeds configured. Use /rss-add to subscribe one.", true)
		return
	}

	b.respondEmbed(i.Interaction, feedListEmbed(subs), nil, true)
}

func (b *Bot) handleRemove(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		b.respondText(i.Interaction, "Usage: /rss-remove id", true)
		return
	}
	id := data.Options[0].IntValue()

	sub, err := b.guildSubscription(ctx, i.GuildID, id)
	if err != nil {
		b.respondText(i.Interaction, fmt.Sprintf("Feed #%d not found.", id), true)
		return
	}

	if err := b.store.DeleteSubscription(ctx, id); err != nil {
		b.log.Error("delete subscription", "subscription_id", id, "error", err)
		b.respondText(i.Interaction, "Could not remove the feed.", true)
		return
	}
	b.respondText(i.Interaction, fmt.Sprintf("Feed removed: %s", sub.URL), false)
}

func (b *Bot) handleTest(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		b.respondText(i.Interaction, "Usage: /rss-test url", true)
		return
	}
	url := data.Options[0].StringValue()
	if !strings.HasPrefix(url, "http") {
		b.respondText(i.Interaction, "Please provide a valid URL.", true)
		return
	}

	b.deferReply(i.Interaction)

	snap, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		b.editReplyText(i.Interaction, fmt.Sprintf("Feed test failed: %v", err))
		return
	}

	newest := "no items"
	if len(snap.Items) > 0 {
		newest = snap.Items[0].Title
	}
	b.editReplyEmbed(i.Interaction, &discordgo.MessageEmbed{
		Title: "Feed Test",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Feed title", Value: orUnknown(snap.Title), Inline: true},
			{Name: "Items found", Value: fmt.Sprintf("%d", len(snap.Items)), Inline: true},
			{Name: "Newest item", Value: orUnknown(newest)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Feed is valid and can be added"},
	})
}

func (b *Bot) handlePanel(ctx context.Context, i *discordgo.InteractionCreate) {
	subs, err := b.store.ListSubscriptions(ctx, i.GuildID)
	if err != nil {
		b.log.Error("list subscriptions", "guild_id", i.GuildID, "error", err)
		b.respondText(i.Interaction, "Could not load the feed list.", true)
		return
	}
	if len(subs) == 0 {
		b.respondText(i.Interaction, "No feeds configured. Use /rss-add to subscribe one.", true)
		return
	}

	b.respondEmbed(i.Interaction, feedListEmbed(subs), panelComponents(subs), true)
}

// handleComponent dispatches panel button presses, carrying the
// "action:id" custom ID scheme.
func (b *Bot) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	action, id, err := ParseCustomID(i.MessageComponentData().CustomID)
	if err != nil {
		b.log.Warn("component interaction", "error", err)
		return
	}

	b.log.Debug("component", "action", action, "id", id, "guild_id", i.GuildID)

	switch action {
	case actionNoop:
		b.respondText(i.Interaction, "Cancelled.", true)
	case actionToggle:
		sub, err := b.guildSubscription(ctx, i.GuildID, id)
		if err != nil {
			b.respondText(i.Interaction, fmt.Sprintf("Feed #%d not found.", id), true)
			return
		}
		active := !sub.Active
		if _, err := b.store.UpdateSubscription(ctx, id, model.SubscriptionPatch{Active: &active}); err != nil {
			b.log.Error("toggle subscription", "subscription_id", id, "error", err)
			b.respondText(i.Interaction, "Could not update the feed.", true)
			return
		}
		state := "paused"
		if active {
			state = "resumed"
		}
		b.respondText(i.Interaction, fmt.Sprintf("Feed #%d %s.", id, state), true)
	case actionDeleteConfirm:
		sub, err := b.guildSubscription(ctx, i.GuildID, id)
		if err != nil {
			b.respondText(i.Interaction, fmt.Sprintf("Feed #%d not found.", id), true)
			return
		}
		b.respondEmbed(i.Interaction, &discordgo.MessageEmbed{
			Title:       "Remove feed?",
			Description: fmt.Sprintf("#%d %s\nThis cannot be undone.", sub.ID, sub.URL),
			Color:       embedColor,
		}, []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Yes, remove", Style: discordgo.DangerButton, CustomID: FormatCustomID(actionDelete, id)},
				discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: FormatCustomID(actionNoop, 0)},
			}},
		}, true)
	case actionDelete:
		sub, err := b.guildSubscription(ctx, i.GuildID, id)
		if err != nil {
			b.respondText(i.Interaction, fmt.Sprintf("Feed #%d not found.", id), true)
			return
		}
		if err := b.store.DeleteSubscription(ctx, id); err != nil {
			b.log.Error("delete subscription", "subscription_id", id, "error", err)
			b.respondText(i.Interaction, "Could not remove the feed.", true)
			return
		}
		b.respondText(i.Interaction, fmt.Sprintf("Feed removed: %s", sub.URL), false)
	}
}

// guildSubscription loads a subscription and verifies it belongs to
// the interaction's guild, so ids cannot be guessed across servers.
func (b *Bot) guildSubscription(ctx context.Context, guildID string, id int64) (*model.Subscription, error) {
	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.GuildID != guildID {
		return nil, storage.ErrNotFound
	}
	return sub, nil
}

func feedListEmbed(subs []model.Subscription) *discordgo.MessageEmbed {
	var lines []string
	for _, sub := range subs {
		status := "active"
		if !sub.Active {
			status = "paused"
		}
		line := fmt.Sprintf("**#%d** %s\n<#%s> — %s", sub.ID, sub.URL, sub.ChannelID, status)
		if sub.RolePing != "" {
			line += fmt.Sprintf(" — pings <@&%s>", sub.RolePing)
		}
		lines = append(lines, line)
	}
	return &discordgo.MessageEmbed{
		Title:       "RSS Feeds",
		Color:       embedColor,
		Description: strings.Join(lines, "\n\n"),
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d feed(s) total", len(subs))},
	}
}

func panelComponents(subs []model.Subscription) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, sub := range subs {
		if len(rows) == panelLimit {
			break
		}
		toggleLabel := fmt.Sprintf("Pause #%d", sub.ID)
		if !sub.Active {
			toggleLabel = fmt.Sprintf("Resume #%d", sub.ID)
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: toggleLabel, Style: discordgo.PrimaryButton, CustomID: FormatCustomID(actionToggle, sub.ID)},
			discordgo.Button{Label: fmt.Sprintf("Remove #%d", sub.ID), Style: discordgo.DangerButton, CustomID: FormatCustomID(actionDeleteConfirm, sub.ID)},
		}})
	}
	return rows
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
