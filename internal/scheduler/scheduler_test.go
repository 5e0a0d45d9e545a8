package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"rsscord/internal/delivery"
	"rsscord/internal/fetcher"
	"rsscord/internal/model"
	"rsscord/internal/storage"
)

type sentMessage struct {
	ChannelID string
	Title     string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendEmbed(channelID, _ string, embed *discordgo.MessageEmbed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChannelID: channelID, Title: embed.Title})
	return nil
}

func (m *mockSender) SendText(channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChannelID: channelID, Title: text})
	return nil
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type mockHTTP struct {
	body  string
	err   error
	calls atomic.Int32
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

// blockingHTTP parks the first request until released, to simulate a
// slow sweep.
type blockingHTTP struct {
	body    string
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (m *blockingHTTP) Do(_ *http.Request) (*http.Response, error) {
	if m.calls.Add(1) == 1 {
		close(m.started)
		<-m.release
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, store storage.Storage, client fetcher.HTTPClient) (*Scheduler, *mockSender) {
	t.Helper()
	sender := &mockSender{}
	pipeline := delivery.New(sender, testLogger())
	pipeline.SetPacing(0)
	sched := NewWithFetcher(store, fetcher.New(client), pipeline, testLogger())
	sched.SetSubscriptionDelay(0)
	return sched, sender
}

func addSubscription(t *testing.T, store storage.Storage, channelID string) model.Subscription {
	t.Helper()
	sub := model.Subscription{
		URL:       "https://news.example.com/rss",
		GuildID:   "guild-1",
		ChannelID: channelID,
	}
	if err := store.CreateSubscription(context.Background(), &sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func TestFirstSweepEstablishesBaseline(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addSubscription(t, store, "chan-1")

	sched, sender := newTestScheduler(t, store, &mockHTTP{body: loadFixture(t)})
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("first sweep delivered %d items, want 0 (baseline only)", len(msgs))
	}

	marker, err := store.GetMarker(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get marker: %v", err)
	}
	if diff := cmp.Diff("item-1", marker); diff != "" {
		t.Errorf("marker mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepDeliversNewItemsOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addSubscription(t, store, "chan-1")
	if err := store.SetMarker(ctx, sub.ID, "item-3"); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	sched, sender := newTestScheduler(t, store, &mockHTTP{body: loadFixture(t)})
	sched.checkAll(ctx)

	var titles []string
	for _, m := range sender.getMessages() {
		titles = append(titles, m.Title)
	}
	want := []string{"Tournament Finals This Weekend", "Patch 2.1 Release Notes"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}

	marker, _ := store.GetMarker(ctx, sub.ID)
	if marker != "item-1" {
		t.Errorf("marker = %q, want item-1", marker)
	}
}

func TestRepeatedSweepsDeliverNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addSubscription(t, store, "chan-1")

	sched, sender := newTestScheduler(t, store, &mockHTTP{body: loadFixture(t)})
	for i := 0; i < 3; i++ {
		sched.checkAll(ctx)
	}

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("unchanging feed delivered %d items over 3 sweeps, want 0", len(msgs))
	}
}

func TestFetchErrorLeavesMarkerUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addSubscription(t, store, "chan-1")
	if err := store.SetMarker(ctx, sub.ID, "item-3"); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	sched, sender := newTestScheduler(t, store, &mockHTTP{err: io.ErrUnexpectedEOF})
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("fetch error delivered %d items, want 0", len(msgs))
	}
	marker, _ := store.GetMarker(ctx, sub.ID)
	if marker != "item-3" {
		t.Errorf("marker = %q, want untouched item-3", marker)
	}
}

func TestRotatedFeedResetsMarkerWithoutDelivery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addSubscription(t, store, "chan-1")
	if err := store.SetMarker(ctx, sub.ID, "long-gone-guid"); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	sched, sender := newTestScheduler(t, store, &mockHTTP{body: loadFixture(t)})
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("rotated feed delivered %d items, want 0", len(msgs))
	}
	marker, _ := store.GetMarker(ctx, sub.ID)
	if marker != "item-1" {
		t.Errorf("marker = %q, want item-1", marker)
	}
}

func TestInactiveSubscriptionSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addSubscription(t, store, "chan-1")
	off := false
	if _, err := store.UpdateSubscription(ctx, sub.ID, model.SubscriptionPatch{Active: &off}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	client := &mockHTTP{body: loadFixture(t)}
	sched, sender := newTestScheduler(t, store, client)
	sched.checkAll(ctx)

	if got := client.calls.Load(); got != 0 {
		t.Errorf("inactive subscription was fetched %d times", got)
	}
	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("inactive subscription delivered %d items", len(msgs))
	}
}

func TestOverlapGuardDropsConcurrentSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addSubscription(t, store, "chan-1")

	client := &blockingHTTP{
		body:    loadFixture(t),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched, _ := newTestScheduler(t, store, client)

	done := make(chan struct{})
	go func() {
		sched.checkAll(ctx)
		close(done)
	}()

	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first sweep never started fetching")
	}

	// Trigger while the first sweep is parked inside the fetch: must
	// return without starting a second fetch.
	sched.checkAll(ctx)
	if got := client.calls.Load(); got != 1 {
		t.Errorf("overlapping trigger caused %d fetches, want 1", got)
	}

	close(client.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first sweep did not finish after release")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	sched, _ := newTestScheduler(t, store, &mockHTTP{body: "<rss><channel></channel></rss>"})
	sched.SetInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestSweepContinuesPastFailingSubscription(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	bad := model.Subscription{URL: "https://bad.example.com/rss", GuildID: "g", ChannelID: "chan-bad"}
	if err := store.CreateSubscription(ctx, &bad); err != nil {
		t.Fatalf("create bad: %v", err)
	}
	good := model.Subscription{URL: "https://news.example.com/rss", GuildID: "g", ChannelID: "chan-good"}
	if err := store.CreateSubscription(ctx, &good); err != nil {
		t.Fatalf("create good: %v", err)
	}
	if err := store.SetMarker(ctx, good.ID, "item-2"); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	// Fail the first URL, serve the fixture for the second.
	client := &urlSwitchHTTP{
		failHost: "bad.example.com",
		body:     loadFixture(t),
	}
	sched, sender := newTestScheduler(t, store, client)
	sched.checkAll(ctx)

	msgs := sender.getMessages()
	if len(msgs) != 1 || msgs[0].ChannelID != "chan-good" {
		t.Errorf("expected delivery to the healthy subscription only, got %+v", msgs)
	}
}

type urlSwitchHTTP struct {
	failHost string
	body     string
}

func (m *urlSwitchHTTP) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Host == m.failHost {
		return nil, io.ErrUnexpectedEOF
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}
