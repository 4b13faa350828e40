package model

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal-feed.xml", "normal-feed.xml"},
		{"feed:with:colons.xml", "feed_with_colons.xml"},
		{"feed<with>brackets.xml", "feed_with_brackets.xml"},
		{"feed/with\\slashes.xml", "feed_with_slashes.xml"},
		{"feed|with|pipes.xml", "feed_with_pipes.xml"},
		{"feed?with*wildcards.xml", "feed_with_wildcards.xml"},
		{"feed\"with\"quotes.xml", "feed_with_quotes.xml"},
		{"trailing dots...", "trailing dots"},
		{"multiple   spaces", "multiple spaces"},
		{"trailing spaces   ", "trailing spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeFileName(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFeed_ArchivePathComputation(t *testing.T) {
	cfg := &ArchiveConfig{
		ArchiveDir:     "/feeds",
		FileNameFormat: "{host}/{title}.xml",
	}

	feed := NewFeed("https://example.com/rss.xml", "Example Blog", "https://example.com", cfg)

	want := "/feeds/example.com/Example Blog.xml"
	if feed.ArchivePath != want {
		t.Errorf("Feed.ArchivePath = %q, want %q", feed.ArchivePath, want)
	}
}

func TestFeed_UntitledFallsBackToHost(t *testing.T) {
	cfg := &ArchiveConfig{
		ArchiveDir:     "/feeds",
		FileNameFormat: "{title}.xml",
	}

	feed := NewFeed("https://example.com/rss.xml", "", "", cfg)

	if feed.DisplayTitle() != "example.com" {
		t.Errorf("DisplayTitle() = %q, want %q", feed.DisplayTitle(), "example.com")
	}
	if feed.ArchivePath != "/feeds/example.com.xml" {
		t.Errorf("Feed.ArchivePath = %q, want %q", feed.ArchivePath, "/feeds/example.com.xml")
	}
}

func TestFeed_HashKeepsCollidingTitlesApart(t *testing.T) {
	cfg := &ArchiveConfig{
		ArchiveDir:     "/feeds",
		FileNameFormat: "{title} {hash}.xml",
	}

	a := NewFeed("https://a.example/rss.xml", "News", "", cfg)
	b := NewFeed("https://b.example/rss.xml", "News", "", cfg)

	if a.ArchivePath == b.ArchivePath {
		t.Errorf("feeds with equal titles share archive path %q", a.ArchivePath)
	}
}

func TestFeed_UnparseableURLHost(t *testing.T) {
	cfg := &ArchiveConfig{
		ArchiveDir:     "/feeds",
		FileNameFormat: "{host}.xml",
	}

	feed := NewFeed("not a url", "", "", cfg)

	if feed.Host() != "feed" {
		t.Errorf("Host() = %q, want fallback %q", feed.Host(), "feed")
	}
}

func TestFeed_LongTitleClamped(t *testing.T) {
	cfg := &ArchiveConfig{
		ArchiveDir:     "/feeds",
		FileNameFormat: "{title}.xml",
	}

	feed := NewFeed("https://example.com/rss.xml", strings.Repeat("x", 400), "", cfg)

	if len(feed.ArchivePath) >= 260 {
		t.Errorf("ArchivePath length = %d, want under the Windows limit", len(feed.ArchivePath))
	}
	if !strings.HasSuffix(feed.ArchivePath, ".xml") {
		t.Errorf("ArchivePath = %q, want the extension preserved", feed.ArchivePath)
	}
}

func TestEpisode_PathComputation(t *testing.T) {
	cfg := &EpisodeConfig{
		DownloadsPath:  "/podcasts/{show}",
		FileNameFormat: "{epnum} {title}.mp3",
	}

	pubDate := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	ep := NewEpisode("My Show", "Pilot", 1, 1800, "https://example.com/ep1.mp3", "", pubDate, cfg)

	want := "/podcasts/My Show/01 Pilot.mp3"
	if ep.Path != want {
		t.Errorf("Episode.Path = %q, want %q", ep.Path, want)
	}
}

func TestEpisode_DatePlaceholders(t *testing.T) {
	cfg := &EpisodeConfig{
		DownloadsPath:  "/podcasts/{show}",
		FileNameFormat: "{year}-{month}-{day} {title}.mp3",
	}

	pubDate := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	ep := NewEpisode("My Show", "Pilot", 1, 1800, "https://example.com/ep1.mp3", "", pubDate, cfg)

	want := "/podcasts/My Show/2024-03-10 Pilot.mp3"
	if ep.Path != want {
		t.Errorf("Episode.Path = %q, want %q", ep.Path, want)
	}
}

func TestEpisode_NoArtwork(t *testing.T) {
	cfg := &EpisodeConfig{
		DownloadsPath:  "/podcasts/{show}",
		FileNameFormat: "{epnum} {title}.mp3",
	}

	ep := NewEpisode("My Show", "Pilot", 1, 0, "https://example.com/ep1.mp3", "", time.Time{}, cfg)

	if ep.HasArtwork() {
		t.Error("HasArtwork() should return false when ArtworkURL is empty")
	}
}

func TestPlaylistPath(t *testing.T) {
	cfg := &EpisodeConfig{
		DownloadsPath:          "/podcasts/{show}",
		FileNameFormat:         "{epnum} {title}.mp3",
		PlaylistFileNameFormat: "{show}",
		PlaylistFormat:         PlaylistFormatM3U,
	}

	got := PlaylistPath("My Show", cfg)
	want := "/podcasts/My Show/My Show.m3u"
	if got != want {
		t.Errorf("PlaylistPath() = %q, want %q", got, want)
	}
}

func TestPlaylistFormat_Extension(t *testing.T) {
	tests := []struct {
		format PlaylistFormat
		want   string
	}{
		{PlaylistFormatM3U, ".m3u"},
		{PlaylistFormatPLS, ".pls"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.Extension(); got != tt.want {
				t.Errorf("Extension() = %q, want %q", got, tt.want)
			}
		})
	}
}
