package bot

import "github.com/bwmarrin/discordgo"

const (
	cmdAdd    = "rss-add"
	cmdList   = "rss-list"
	cmdRemove = "rss-remove"
	cmdTest   = "rss-test"
	cmdPanel  = "rss-panel"
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        cmdAdd,
		Description: "Subscribe a channel to an RSS/Atom feed",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "url",
				Description: "Feed URL",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
			{
				Name:        "channel",
				Description: "Target channel (defaults to the current one)",
				Type:        discordgo.ApplicationCommandOptionChannel,
				Required:    false,
			},
			{
				Name:        "role",
				Description: "Role to mention on every post",
				Type:        discordgo.ApplicationCommandOptionRole,
				Required:    false,
			},
		},
	},
	{
		Name:        cmdList,
		Description: "Show the feeds configured for this server",
	},
	{
		Name:        cmdRemove,
		Description: "Remove a feed subscription",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "id",
				Description: "Subscription ID (see rss-list)",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Required:    true,
			},
		},
	},
	{
		Name:        cmdTest,
		Description: "Fetch a feed URL without subscribing",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "url",
				Description: "Feed URL",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
		},
	},
	{
		Name:        cmdPanel,
		Description: "Interactive panel for managing this server's feeds",
	},
}
