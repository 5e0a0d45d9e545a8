// Package bot is the Discord command surface: it registers the slash
// commands and translates interactions into store operations.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"rsscord/internal/fetcher"
	"rsscord/internal/storage"
)

// gateway is the slice of the Discord session the handlers need.
// *discordgo.Session satisfies it.
type gateway interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Bot handles Discord interactions and doubles as the messaging
// gateway for the delivery pipeline.
type Bot struct {
	session *discordgo.Session
	api     gateway
	store   storage.Storage
	fetcher *fetcher.Fetcher
	log     *slog.Logger
}

// New creates a Bot with the given Discord bot token.
func New(token string, store storage.Storage, log *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	return &Bot{
		session: session,
		api:     session,
		store:   store,
		fetcher: fetcher.New(http.DefaultClient),
		log:     log,
	}, nil
}

// Run connects to the gateway, registers the slash commands and blocks
// until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(ctx, i)
	})
	b.session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() { _ = b.session.Close() }()

	if _, err := b.api.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", commands); err != nil {
		// Commands from an earlier run keep working, so this is not fatal.
		b.log.Error("register commands", "error", err)
	}

	b.log.Info("bot connected", "user", b.session.State.User.Username)
	<-ctx.Done()
	return nil
}

// SendEmbed posts a rich message to a channel. Implements delivery.Sender.
func (b *Bot) SendEmbed(channelID, content string, embed *discordgo.MessageEmbed) error {
	_, err := b.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("send embed: %w", err)
	}
	return nil
}

// SendText posts a plain-text message to a channel. Implements delivery.Sender.
func (b *Bot) SendText(channelID, text string) error {
	_, err := b.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: text})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (b *Bot) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	// Every operation mutates or inspects the guild's feeds, so the
	// permission gate comes before any dispatch.
	if !hasManageMessages(i) {
		b.respondText(i.Interaction, "You need the Manage Messages permission to use this.", true)
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		b.log.Debug("command", "name", data.Name, "guild_id", i.GuildID)
		switch data.Name {
		case cmdAdd:
			b.handleAdd(ctx, i, data)
		case cmdList:
			b.handleList(ctx, i)
		case cmdRemove:
			b.handleRemove(ctx, i, data)
		case cmdTest:
			b.handleTest(ctx, i, data)
		case cmdPanel:
			b.handlePanel(ctx, i)
		default:
			b.respondText(i.Interaction, "Unknown command.", true)
		}
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	}
}

func hasManageMessages(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageMessages != 0
}

func (b *Bot) respondText(i *discordgo.Interaction, text string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text, Flags: flags},
	})
	if err != nil {
		b.log.Error("interaction respond", "error", err)
	}
}

func (b *Bot) respondEmbed(i *discordgo.Interaction, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      flags,
		},
	})
	if err != nil {
		b.log.Error("interaction respond", "error", err)
	}
}

func (b *Bot) deferReply(i *discordgo.Interaction) {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.log.Error("defer reply", "error", err)
	}
}

func (b *Bot) editReplyText(i *discordgo.Interaction, text string) {
	if _, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &text}); err != nil {
		b.log.Error("edit reply", "error", err)
	}
}

func (b *Bot) editReplyEmbed(i *discordgo.Interaction, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		b.log.Error("edit reply", "error", err)
	}
}
