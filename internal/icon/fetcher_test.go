package icon

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
)

func newTestFetcher(t *testing.T) (*Fetcher, *config.Settings) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.IconsDir = filepath.Join(t.TempDir(), "icons")
	settings.IconMaxSize = 32
	f := NewFetcher(settings, logr.Discard(), nil)
	t.Cleanup(f.Close)
	return f, settings
}

func testFeed(t *testing.T, feedURL string) *model.Feed {
	t.Helper()
	cfg := &model.ArchiveConfig{ArchiveDir: t.TempDir(), FileNameFormat: "{host}/{title}.xml"}
	return model.NewFeed(feedURL, "Example", "", cfg)
}

// pngBytes encodes a small non-square test image.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 6))
	for x := 0; x < 10; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetcher_SavesSquareThumbnail(t *testing.T) {
	icon := pngBytes(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/favicon.ico" {
			http.NotFound(w, req)
			return
		}
		w.Write(icon)
	}))
	defer server.Close()

	f, settings := newTestFetcher(t)

	stats, err := f.Fetch(context.Background(), []*model.Feed{testFeed(t, server.URL+"/feed.xml")})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stats.Saved != 1 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v, want 1 saved", stats)
	}

	path := filepath.Join(settings.IconsDir, "127.0.0.1.png")
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("icon not written: %v", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("saved icon is not a PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 32 {
		t.Errorf("thumbnail is %dx%d, want 32x32", bounds.Dx(), bounds.Dy())
	}
}

func TestFetcher_AbortsNonImageBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>There is no favicon here.</body></html>"))
	}))
	defer server.Close()

	f, settings := newTestFetcher(t)

	stats, err := f.Fetch(context.Background(), []*model.Feed{testFeed(t, server.URL+"/feed.xml")})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stats.Skipped != 1 || stats.Saved != 0 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 1 skipped", stats)
	}

	entries, err := os.ReadDir(settings.IconsDir)
	if err == nil && len(entries) != 0 {
		t.Errorf("icons dir has %d entries, want none", len(entries))
	}
}

func TestFetcher_KeepsUndecodableIconVerbatim(t *testing.T) {
	// An ICO header the sniffer recognizes but the image decoder cannot
	// parse.
	ico := append([]byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00}, bytes.Repeat([]byte{0xAB}, 64)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write(ico)
	}))
	defer server.Close()

	f, settings := newTestFetcher(t)

	stats, err := f.Fetch(context.Background(), []*model.Feed{testFeed(t, server.URL+"/feed.xml")})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stats.Saved != 1 {
		t.Fatalf("stats = %+v, want 1 saved", stats)
	}

	data, err := os.ReadFile(filepath.Join(settings.IconsDir, "127.0.0.1.ico"))
	if err != nil {
		t.Fatalf("icon not written: %v", err)
	}
	if !bytes.Equal(data, ico) {
		t.Error("undecodable icon was not saved verbatim")
	}
}

func TestFetcher_MissingIconCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	f, _ := newTestFetcher(t)

	stats, err := f.Fetch(context.Background(), []*model.Feed{testFeed(t, server.URL+"/feed.xml")})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stats.Failed != 1 || stats.Saved != 0 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}
}

func TestFetcher_DedupesHosts(t *testing.T) {
	var hits int32
	icon := pngBytes(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(icon)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t)

	feeds := []*model.Feed{
		testFeed(t, server.URL+"/a.xml"),
		testFeed(t, server.URL+"/b.xml"),
		testFeed(t, server.URL+"/c.xml"),
	}
	stats, err := f.Fetch(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stats.Requested != 1 || stats.Saved != 1 {
		t.Errorf("stats = %+v, want 1 requested, 1 saved", stats)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestIconURL(t *testing.T) {
	cfg := &model.ArchiveConfig{ArchiveDir: "/tmp", FileNameFormat: "{host}/{title}.xml"}

	tests := []struct {
		name    string
		feedURL string
		home    string
		want    string
		wantOK  bool
	}{
		{
			name:    "home page host wins",
			feedURL: "https://feeds.example.com/blog.xml",
			home:    "https://example.com/blog/",
			want:    "https://example.com/favicon.ico",
			wantOK:  true,
		},
		{
			name:    "falls back to feed host",
			feedURL: "https://feeds.example.com/blog.xml",
			want:    "https://feeds.example.com/favicon.ico",
			wantOK:  true,
		},
		{
			name:    "unusable url",
			feedURL: "not a url",
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := model.NewFeed(tt.feedURL, "Example", tt.home, cfg)
			got, ok := IconURL(feed)
			if ok != tt.wantOK {
				t.Fatalf("IconURL() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("IconURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
