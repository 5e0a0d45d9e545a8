package delivery

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/bwmarrin/discordgo"

	"rsscord/internal/model"
)

const (
	embedColor     = 0x0099FF
	descriptionCap = 300
	noTitle        = "Untitled"
	noDescription  = "No description available."
)

// BuildEmbed renders a feed item as a Discord embed. The feed title
// goes into the footer, matching how readers attribute the source.
func BuildEmbed(feedTitle string, item model.Item) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       orDefault(item.Title, noTitle),
		URL:         item.Link,
		Description: CleanDescription(description(item)),
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: feedTitle},
	}

	ts := time.Now()
	if item.Published != nil {
		ts = *item.Published
	}
	embed.Timestamp = ts.UTC().Format(time.RFC3339)

	if img := ItemImage(item); img != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: img}
	}

	if item.Author != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Author", Value: item.Author, Inline: true,
		})
	}
	if len(item.Categories) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Categories", Value: strings.Join(item.Categories, ", "), Inline: true,
		})
	}

	return embed
}

// FallbackText renders the degraded plain-text form of an item, used
// when the embed send fails.
func FallbackText(feedTitle string, item model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", feedTitle, orDefault(item.Title, noTitle))
	if desc := CleanDescription(description(item)); desc != noDescription {
		b.WriteString("\n")
		b.WriteString(desc)
	}
	if item.Link != "" {
		b.WriteString("\n")
		b.WriteString(item.Link)
	}
	return b.String()
}

// MentionPrefix returns the message content that pings the
// subscription's role, or "" when none is configured.
func MentionPrefix(sub model.Subscription) string {
	if sub.RolePing == "" {
		return ""
	}
	return fmt.Sprintf("<@&%s>", sub.RolePing)
}

// CleanDescription strips markup, collapses whitespace and caps the
// text at a word boundary.
func CleanDescription(raw string) string {
	if raw == "" {
		return noDescription
	}

	text := raw
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return noDescription
	}
	return truncate(text, descriptionCap)
}

// truncate cuts s at the last word boundary before cap runes and
// appends an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := max
	for i := max; i > 0; i-- {
		if unicode.IsSpace(runes[i-1]) {
			cut = i - 1
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}

// ItemImage picks the best-effort image for an item, checked in
// priority order: image enclosure, feed-declared item image, first
// inline image in the content body.
func ItemImage(item model.Item) string {
	if item.Enclosure != nil && item.Enclosure.URL != "" &&
		strings.HasPrefix(item.Enclosure.MIMEType, "image/") {
		return item.Enclosure.URL
	}
	if item.ImageURL != "" {
		return item.ImageURL
	}
	return inlineImage(orDefault(item.Content, item.Snippet))
}

func inlineImage(html string) string {
	if html == "" || !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

func description(item model.Item) string {
	return orDefault(item.Snippet, item.Content)
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
