// Package fetcher is the feed source adapter: it downloads and parses
// RSS/Atom feeds into domain snapshots.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"rsscord/internal/model"
)

const (
	fetchTimeout = 20 * time.Second
	maxBodySize  = 5 * 1024 * 1024
	userAgent    = "rsscord/1.0 (+https://github.com/rsscord)"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses feeds. Errors returned by Fetch are
// transient: the caller skips the cycle and retries on the next one.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: fetchTimeout,
	}
}

// Fetch downloads and parses the feed at url. Items keep the feed's
// document order, which sources are assumed to emit newest-first.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	snap := &model.Snapshot{
		Title: parsed.Title,
		Items: make([]model.Item, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		snap.Items = append(snap.Items, convertItem(item))
	}
	return snap, nil
}

func convertItem(item *gofeed.Item) model.Item {
	out := model.Item{
		GUID:       item.GUID,
		Title:      item.Title,
		Link:       item.Link,
		Published:  item.PublishedParsed,
		Content:    item.Content,
		Snippet:    item.Description,
		ImageURL:   itemImage(item),
		Categories: item.Categories,
	}
	if item.Author != nil {
		out.Author = item.Author.Name
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			out.Enclosure = &model.Enclosure{URL: enc.URL, MIMEType: enc.Type}
			break
		}
	}
	out.Key = ItemKey(out)
	return out
}

// ItemKey returns the stable identity of an item: GUID, falling back
// to the link, falling back to a hash of title and publish date. An
// item without a GUID is never keyed by the empty string, so an absent
// marker can never match it.
func ItemKey(item model.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	published := ""
	if item.Published != nil {
		published = item.Published.UTC().Format(time.RFC3339)
	}
	h := sha256.Sum256([]byte(item.Title + "|" + published))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// itemImage returns an image URL declared at the item level: the
// item's own image if any, otherwise a media-extension thumbnail or
// image content.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media["thumbnail"] {
		if url := ext.Attrs["url"]; url != "" {
			return url
		}
	}
	for _, ext := range media["content"] {
		if url := ext.Attrs["url"]; url != "" && strings.HasPrefix(ext.Attrs["type"], "image/") {
			return url
		}
	}
	return ""
}
