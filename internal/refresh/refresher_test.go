package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/httpcache"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
)

const rssBody = `<?xml version="1.0"?><rss version="2.0"><channel><title>Example</title></channel></rss>`

func newTestSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	settings := config.DefaultSettings()
	settings.ArchiveDir = filepath.Join(dir, "archive")
	settings.CacheDBPath = filepath.Join(dir, "cache.db")
	settings.SubmitChunkSize = 0
	settings.SubmitChunksPerSecond = 0
	return settings
}

// eventLog collects progress events from refresher callbacks, which run
// on session goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) record(e progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func newTestRefresher(t *testing.T, settings *config.Settings, store *httpcache.Store) (*Refresher, *eventLog) {
	t.Helper()
	log := &eventLog{}
	r := NewRefresher(settings, store, logr.Discard(), log.record)
	t.Cleanup(r.Close)
	return r, log
}

func TestRefresher_ArchivesFeeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "%s:%s", rssBody, req.URL.Path)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	r, _ := newTestRefresher(t, settings, nil)

	cfg := settings.ToArchiveConfig()
	feeds := []*model.Feed{
		model.NewFeed(server.URL+"/a.xml", "Feed A", "", cfg),
		model.NewFeed(server.URL+"/b.xml", "Feed B", "", cfg),
		model.NewFeed(server.URL+"/c.xml", "Feed C", "", cfg),
	}

	stats, err := r.Refresh(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if stats.Refreshed != 3 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 3 refreshed, 0 failed", stats)
	}
	if stats.Bytes == 0 {
		t.Error("stats.Bytes = 0, want > 0")
	}

	for _, feed := range feeds {
		data, err := os.ReadFile(feed.ArchivePath)
		if err != nil {
			t.Fatalf("archive for %s not written: %v", feed.URL, err)
		}
		if !strings.HasPrefix(string(data), rssBody) {
			t.Errorf("archive for %s holds %q", feed.URL, data)
		}
	}
}

func TestRefresher_ConditionalRoundTrip(t *testing.T) {
	var hits, conditionalHits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		hits++
		conditional := req.Header.Get("If-None-Match") == `"v1"`
		if conditional {
			conditionalHits++
		}
		mu.Unlock()

		if conditional {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	store, err := httpcache.Open(settings.CacheDBPath)
	if err != nil {
		t.Fatalf("httpcache.Open() error = %v", err)
	}
	defer store.Close()

	r, _ := newTestRefresher(t, settings, store)

	feed := model.NewFeed(server.URL+"/feed.xml", "Example", "", settings.ToArchiveConfig())

	// First pass: full fetch, archived, validators stored.
	stats, err := r.Refresh(context.Background(), []*model.Feed{feed})
	if err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if stats.Refreshed != 1 || stats.Unchanged != 0 {
		t.Fatalf("first pass stats = %+v, want 1 refreshed", stats)
	}
	archived, err := os.ReadFile(feed.ArchivePath)
	if err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	// Second pass: conditional fetch, 304, archive untouched.
	stats, err = r.Refresh(context.Background(), []*model.Feed{feed})
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if stats.Unchanged != 1 || stats.Refreshed != 0 {
		t.Fatalf("second pass stats = %+v, want 1 unchanged", stats)
	}

	mu.Lock()
	gotHits, gotConditional := hits, conditionalHits
	mu.Unlock()
	if gotHits != 2 || gotConditional != 1 {
		t.Errorf("server saw %d hits (%d conditional), want 2 (1 conditional)", gotHits, gotConditional)
	}

	after, err := os.ReadFile(feed.ArchivePath)
	if err != nil {
		t.Fatalf("archive missing after 304: %v", err)
	}
	if string(after) != string(archived) {
		t.Error("304 response modified the archive")
	}

	rec, err := store.Lookup(feed.URL)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rec == nil || rec.LastStatus != http.StatusNotModified {
		t.Errorf("store record = %+v, want LastStatus 304", rec)
	}
	if rec != nil && rec.ETag != `"v1"` {
		t.Errorf("Touch() lost the stored ETag: %q", rec.ETag)
	}
}

func TestRefresher_UnexpectedResponseCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/broken.xml" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	r, log := newTestRefresher(t, settings, nil)

	cfg := settings.ToArchiveConfig()
	feeds := []*model.Feed{
		model.NewFeed(server.URL+"/ok.xml", "OK", "", cfg),
		model.NewFeed(server.URL+"/broken.xml", "Broken", "", cfg),
	}

	stats, err := r.Refresh(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if stats.Refreshed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 refreshed, 1 failed", stats)
	}
	if !log.contains("Unexpected response 500") {
		t.Error("expected a progress warning for the 500 response")
	}
}

func TestRefresher_DuplicateFeedsDiscarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	r, _ := newTestRefresher(t, settings, nil)

	feed := model.NewFeed(server.URL+"/feed.xml", "Example", "", settings.ToArchiveConfig())

	stats, err := r.Refresh(context.Background(), []*model.Feed{feed, feed})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if stats.Submitted != 2 || stats.Refreshed != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want 2 submitted, 1 refreshed, 1 duplicate", stats)
	}
	if got := stats.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0", got)
	}
}

func TestRefresher_DroppedFeedAccounting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	r, log := newTestRefresher(t, settings, nil)

	cfg := settings.ToArchiveConfig()
	feeds := []*model.Feed{
		model.NewFeed(server.URL+"/feed.xml", "Good", "", cfg),
		// The space makes the URL unusable for a request.
		model.NewFeed("http://bad host/feed.xml", "Bad", "", cfg),
	}

	stats, err := r.Refresh(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if stats.Refreshed != 1 {
		t.Errorf("stats.Refreshed = %d, want 1", stats.Refreshed)
	}
	if got := stats.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1 (stats = %+v)", got, stats)
	}
	if !log.contains("Skipping http://bad host/feed.xml") {
		t.Error("expected a progress warning for the dropped feed")
	}
}

func TestRefresher_ChunkedSubmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	settings.SubmitChunkSize = 1
	settings.SubmitChunksPerSecond = 200 // fast enough to keep the test short

	r, _ := newTestRefresher(t, settings, nil)

	cfg := settings.ToArchiveConfig()
	var feeds []*model.Feed
	for i := 0; i < 5; i++ {
		feeds = append(feeds, model.NewFeed(fmt.Sprintf("%s/feed-%d.xml", server.URL, i), fmt.Sprintf("Feed %d", i), "", cfg))
	}

	// Single-feed chunks drain between submissions; the refresh must
	// still wait for the last chunk before reporting completion.
	stats, err := r.Refresh(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if stats.Refreshed != 5 {
		t.Errorf("stats.Refreshed = %d, want 5", stats.Refreshed)
	}
}

func TestRefresher_SecondRefreshWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		close(started)
		select {
		case <-release:
		case <-req.Context().Done():
		}
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	r, _ := newTestRefresher(t, settings, nil)

	feed := model.NewFeed(server.URL+"/feed.xml", "Example", "", settings.ToArchiveConfig())

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background(), []*model.Feed{feed})
		errCh <- err
	}()

	<-started
	_, err := r.Refresh(context.Background(), []*model.Feed{feed})
	if !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("overlapping Refresh() error = %v, want ErrRefreshInProgress", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Errorf("first Refresh() error = %v", err)
	}
}

func TestRefreshAll_Collections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, rssBody)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	settings.MaxConcurrentCollections = 2

	store, err := httpcache.Open(settings.CacheDBPath)
	if err != nil {
		t.Fatalf("httpcache.Open() error = %v", err)
	}
	defer store.Close()

	cfg := settings.ToArchiveConfig()
	collections := []Collection{
		{Name: "news", Feeds: []*model.Feed{
			model.NewFeed(server.URL+"/news-1.xml", "News One", "", cfg),
			model.NewFeed(server.URL+"/news-2.xml", "News Two", "", cfg),
		}},
		{Name: "tech", Feeds: []*model.Feed{
			model.NewFeed(server.URL+"/tech-1.xml", "Tech One", "", cfg),
		}},
	}

	results := RefreshAll(context.Background(), collections, settings, store, logr.Discard(), nil)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	byName := map[string]CollectionResult{}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("collection %s error = %v", res.Name, res.Err)
		}
		byName[res.Name] = res
	}
	if byName["news"].Stats.Refreshed != 2 {
		t.Errorf("news refreshed = %d, want 2", byName["news"].Stats.Refreshed)
	}
	if byName["tech"].Stats.Refreshed != 1 {
		t.Errorf("tech refreshed = %d, want 1", byName["tech"].Stats.Refreshed)
	}
}
