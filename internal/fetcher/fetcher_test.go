package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rsscord/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "Gaming News",
			wantItems: 5,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			snap, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, snap.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(snap.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchPreservesOrderAndMapsFields(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	f := New(&mockTransport{body: xml, statusCode: 200})

	snap, err := f.Fetch(context.Background(), "https://example.com/rss")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	var gotKeys []string
	for _, item := range snap.Items {
		gotKeys = append(gotKeys, item.Key)
	}
	wantKeys := []string{"item-1", "item-2", "item-3", "item-4", "item-5"}
	if diff := cmp.Diff(wantKeys, gotKeys); diff != "" {
		t.Errorf("item order mismatch (-want +got):\n%s", diff)
	}

	newest := snap.Items[0]
	if newest.Enclosure == nil || newest.Enclosure.URL != "https://cdn.example.com/patch-2-1.png" {
		t.Errorf("enclosure not mapped: %+v", newest.Enclosure)
	}
	if newest.Enclosure != nil && newest.Enclosure.MIMEType != "image/png" {
		t.Errorf("enclosure MIME type mismatch: %q", newest.Enclosure.MIMEType)
	}
	if newest.Published == nil {
		t.Error("expected Published to be parsed")
	}
	if len(newest.Categories) != 1 || newest.Categories[0] != "Updates" {
		t.Errorf("categories mismatch: %v", newest.Categories)
	}

	withThumb := snap.Items[2]
	if withThumb.ImageURL != "https://cdn.example.com/interview-thumb.jpg" {
		t.Errorf("media thumbnail not mapped, got %q", withThumb.ImageURL)
	}
}

func TestItemKey(t *testing.T) {
	published := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		item    model.Item
		wantKey string
		hasHash bool
	}{
		{
			name:    "guid wins",
			item:    model.Item{GUID: "abc-123", Link: "https://example.com/post"},
			wantKey: "abc-123",
		},
		{
			name:    "link fallback",
			item:    model.Item{Link: "https://example.com/post-1"},
			wantKey: "https://example.com/post-1",
		},
		{
			name:    "hash fallback",
			item:    model.Item{Title: "Post Without Identity", Published: &published},
			hasHash: true,
		},
		{
			name:    "hash fallback without date",
			item:    model.Item{Title: "Bare Title"},
			hasHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ItemKey(tt.item)
			if got == "" {
				t.Fatal("key must never be empty")
			}
			if tt.hasHash {
				if !strings.HasPrefix(got, "sha256:") {
					t.Errorf("expected sha256 prefix, got %q", got)
				}
				return
			}
			if diff := cmp.Diff(tt.wantKey, got); diff != "" {
				t.Errorf("key mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemKeyIsStable(t *testing.T) {
	published := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	item := model.Item{Title: "Same Item", Published: &published}
	if ItemKey(item) != ItemKey(item) {
		t.Error("expected identical keys for identical items")
	}
	other := model.Item{Title: "Other Item", Published: &published}
	if ItemKey(item) == ItemKey(other) {
		t.Error("expected different keys for different titles")
	}
}
