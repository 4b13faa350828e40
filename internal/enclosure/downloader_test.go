package enclosure

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
)

func newTestSettings(t *testing.T) *config.Settings {
	t.Helper()

	settings := config.DefaultSettings()
	settings.EpisodeDownloadsPath = filepath.Join(t.TempDir(), "{show}")
	settings.ModifyTags = false
	settings.SaveArtworkInTags = false
	settings.CreatePlaylist = false
	return settings
}

func newTestDownloader(t *testing.T, settings *config.Settings) *Downloader {
	t.Helper()

	d := NewDownloader(settings, logr.Discard(), nil)
	t.Cleanup(d.Close)
	return d
}

func testEpisode(settings *config.Settings, show, title string, number int, enclosureURL, artworkURL string) *model.Episode {
	publishDate := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return model.NewEpisode(show, title, number, 1800, enclosureURL, artworkURL, publishDate, settings.ToEpisodeConfig())
}

func TestDownloader_WritesEpisodeFile(t *testing.T) {
	body := []byte("fake mp3 bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	d := newTestDownloader(t, settings)
	ep := testEpisode(settings, "Test Show", "Pilot", 1, server.URL+"/pilot.mp3", "")

	stats, err := d.Download(context.Background(), []*model.Episode{ep})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Downloaded != 1 || stats.Failed != 0 {
		t.Fatalf("got stats %+v, want 1 downloaded and no failures", stats)
	}
	if stats.Bytes != int64(len(body)) {
		t.Errorf("got %d bytes, want %d", stats.Bytes, len(body))
	}

	saved, err := os.ReadFile(ep.Path)
	if err != nil {
		t.Fatalf("reading episode file: %v", err)
	}
	if !bytes.Equal(saved, body) {
		t.Errorf("episode file content differs from response body")
	}
}

func TestDownloader_SizeCapAbandonsTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0xFF}, 64<<10))
	}))
	defer server.Close()

	settings := newTestSettings(t)
	settings.MaxEnclosureBytes = 100
	d := newTestDownloader(t, settings)
	ep := testEpisode(settings, "Test Show", "Huge", 1, server.URL+"/huge.mp3", "")

	stats, err := d.Download(context.Background(), []*model.Episode{ep})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Skipped != 1 || stats.Downloaded != 0 {
		t.Fatalf("got stats %+v, want 1 skipped and 0 downloaded", stats)
	}

	if _, err := os.Stat(ep.Path); !os.IsNotExist(err) {
		t.Errorf("abandoned episode left a file at %s", ep.Path)
	}
	parts, err := filepath.Glob(filepath.Join(ep.Dir(), "*.part"))
	if err != nil {
		t.Fatalf("globbing temp files: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("abandoned episode left temp files: %v", parts)
	}
}

func TestDownloader_MissingEnclosureCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	settings := newTestSettings(t)
	d := newTestDownloader(t, settings)
	ep := testEpisode(settings, "Test Show", "Gone", 1, server.URL+"/gone.mp3", "")

	stats, err := d.Download(context.Background(), []*model.Episode{ep})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Failed != 1 || stats.Downloaded != 0 {
		t.Fatalf("got stats %+v, want 1 failed and 0 downloaded", stats)
	}
}

func TestDownloader_DuplicateEpisodesDiscarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	settings := newTestSettings(t)
	d := newTestDownloader(t, settings)
	ep := testEpisode(settings, "Test Show", "Pilot", 1, server.URL+"/pilot.mp3", "")

	stats, err := d.Download(context.Background(), []*model.Episode{ep, ep})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Downloaded != 1 || stats.Duplicates != 1 {
		t.Fatalf("got stats %+v, want 1 downloaded and 1 duplicate", stats)
	}
}

func TestDownloader_WritesPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio for " + r.URL.Path))
	}))
	defer server.Close()

	settings := newTestSettings(t)
	settings.CreatePlaylist = true
	d := newTestDownloader(t, settings)
	episodes := []*model.Episode{
		testEpisode(settings, "Test Show", "Pilot", 1, server.URL+"/ep1.mp3", ""),
		testEpisode(settings, "Test Show", "Second Episode", 2, server.URL+"/ep2.mp3", ""),
	}

	stats, err := d.Download(context.Background(), episodes)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Downloaded != 2 {
		t.Fatalf("got stats %+v, want 2 downloaded", stats)
	}

	playlistPath := model.PlaylistPath("Test Show", settings.ToEpisodeConfig())
	content, err := os.ReadFile(playlistPath)
	if err != nil {
		t.Fatalf("reading playlist: %v", err)
	}
	text := string(content)
	if !strings.HasPrefix(text, "#EXTM3U") {
		t.Errorf("extended playlist missing #EXTM3U header:\n%s", text)
	}
	for _, name := range []string{"01 Pilot.mp3", "02 Second Episode.mp3"} {
		if !strings.Contains(text, name) {
			t.Errorf("playlist missing %q:\n%s", name, text)
		}
	}
}

func TestDownloader_TagsEpisode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake mp3 bytes"))
	}))
	defer server.Close()

	settings := newTestSettings(t)
	settings.ModifyTags = true
	d := newTestDownloader(t, settings)
	ep := testEpisode(settings, "Test Show", "Pilot", 1, server.URL+"/pilot.mp3", "")

	stats, err := d.Download(context.Background(), []*model.Episode{ep})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Downloaded != 1 || stats.Failed != 0 {
		t.Fatalf("got stats %+v, want 1 downloaded and no failures", stats)
	}
	if _, err := os.Stat(ep.Path); err != nil {
		t.Errorf("tagged episode file missing: %v", err)
	}
}

func TestDownloader_SharedArtworkFetchedOnce(t *testing.T) {
	var artworkHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cover.png", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&artworkHits, 1)
		w.Write([]byte("artwork bytes"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio for " + r.URL.Path))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	settings := newTestSettings(t)
	settings.SaveArtworkInTags = true
	settings.ConvertArtworkToJPG = false
	settings.ArtworkMaxSize = 0
	d := newTestDownloader(t, settings)
	artworkURL := server.URL + "/cover.png"
	episodes := []*model.Episode{
		testEpisode(settings, "Test Show", "Pilot", 1, server.URL+"/ep1.mp3", artworkURL),
		testEpisode(settings, "Test Show", "Second Episode", 2, server.URL+"/ep2.mp3", artworkURL),
	}

	stats, err := d.Download(context.Background(), episodes)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if stats.Downloaded != 2 {
		t.Fatalf("got stats %+v, want 2 downloaded", stats)
	}
	if hits := atomic.LoadInt32(&artworkHits); hits != 1 {
		t.Errorf("artwork fetched %d times, want 1", hits)
	}
}
