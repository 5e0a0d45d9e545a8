// Package model defines the domain types used across the application.
package model

import "time"

// Subscription binds one feed URL to one Discord channel.
type Subscription struct {
	ID        int64
	URL       string
	GuildID   string
	ChannelID string
	RolePing  string
	Active    bool
	AddedAt   time.Time
}

// SubscriptionPatch is a partial update applied to a subscription.
// Nil fields are left unchanged.
type SubscriptionPatch struct {
	Active   *bool
	RolePing *string
}

// Snapshot is the result of one feed fetch. Items keep the feed's
// document order, newest first.
type Snapshot struct {
	Title string
	Items []Item
}

// Item is a single entry of a fetched feed.
type Item struct {
	// Key is the stable identity used for novelty detection: the GUID
	// when present, otherwise the link, otherwise a hash of title and
	// publish date. Never empty.
	Key string

	GUID       string
	Title      string
	Link       string
	Published  *time.Time
	Content    string
	Snippet    string
	Enclosure  *Enclosure
	ImageURL   string
	Author     string
	Categories []string
}

// Enclosure is an attached media resource of a feed item.
type Enclosure struct {
	URL      string
	MIMEType string
}
