package icon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/download"
	ioutils "github.com/VonLuderitz/NetNewsWire/internal/io"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
)

// maxIconBytes caps how much of an icon body is accepted before the
// transfer is abandoned.
const maxIconBytes = 1 << 20

// Stats summarizes one icon fetch pass.
type Stats struct {
	// Requested is how many distinct icon URLs were submitted.
	Requested int

	// Saved counts icons written to the icons dir.
	Saved int

	// Skipped counts transfers abandoned mid-body: not an image, or too
	// large.
	Skipped int

	// Failed counts transport errors and non-OK responses.
	Failed int
}

// Fetcher downloads site icons for a set of feeds through its own
// download session and writes them, scaled to a square thumbnail, under
// the icons dir. Bodies that turn out not to be images are abandoned
// after the first chunk.
type Fetcher struct {
	session *download.Session[string]
	images  *ioutils.ImageService
	dir     string
	size    int
	log     logr.Logger

	onProgress func(progress.Event)

	mu        sync.Mutex
	ctx       context.Context
	batchDone chan struct{}

	saved   int32
	skipped int32
	failed  int32
}

var _ download.Delegate[string] = (*Fetcher)(nil)

// NewFetcher creates a Fetcher writing icons under settings.IconsDir,
// scaled to settings.IconMaxSize pixels.
func NewFetcher(settings *config.Settings, log logr.Logger, onProgress func(progress.Event)) *Fetcher {
	f := &Fetcher{
		images:     ioutils.NewImageService(),
		dir:        settings.IconsDir,
		size:       settings.IconMaxSize,
		log:        log.WithName("icon"),
		onProgress: onProgress,
		batchDone:  make(chan struct{}, 1),
	}
	f.session = download.NewSession[string](download.Options{
		MaxConcurrentDownloads: settings.MaxConcurrentDownloads,
		MaxConnectionsPerHost:  settings.MaxConnectionsPerHost,
		Timeout:                time.Duration(settings.DownloadTimeoutSeconds) * time.Second,
		UserAgent:              settings.UserAgent,
		RedirectBlacklist:      settings.RedirectBlacklist,
		Logger:                 log,
	}, f)
	return f
}

// Close releases the fetcher's download session.
func (f *Fetcher) Close() {
	f.session.Close()
}

// IconURL derives the favicon address for a feed: the feed's home page
// host when known, otherwise the feed URL's own host.
func IconURL(feed *model.Feed) (string, bool) {
	base := feed.HomePageURL
	if base == "" {
		base = feed.URL
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || u.Scheme == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico", true
}

// Fetch downloads the icons for feeds and blocks until every one has
// been accounted for. Feeds sharing a host share one fetch. Run one
// Fetch at a time per Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, feeds []*model.Feed) (Stats, error) {
	seen := make(map[string]struct{})
	var urls []string
	for _, feed := range feeds {
		iconURL, ok := IconURL(feed)
		if !ok {
			continue
		}
		if _, dup := seen[iconURL]; dup {
			continue
		}
		seen[iconURL] = struct{}{}
		urls = append(urls, iconURL)
	}
	if len(urls) == 0 {
		return Stats{}, nil
	}

	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()
	atomic.StoreInt32(&f.saved, 0)
	atomic.StoreInt32(&f.skipped, 0)
	atomic.StoreInt32(&f.failed, 0)

	select {
	case <-f.batchDone:
	default:
	}

	f.progress(progress.Event{Message: fmt.Sprintf("Fetching %d icons", len(urls)), Level: progress.LevelVerbose})
	f.session.Download(urls...)

	select {
	case <-f.batchDone:
	case <-ctx.Done():
		f.session.CancelAll()
		return f.snapshot(len(urls)), ctx.Err()
	}
	return f.snapshot(len(urls)), nil
}

// RequestForObject builds the icon GET request.
func (f *Fetcher) RequestForObject(iconURL string) *http.Request {
	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	return req
}

// ShouldContinueDownload abandons bodies that are not images or exceed
// the size cap. A missing favicon often comes back as a 200 HTML page;
// sniffing the first chunk catches those.
func (f *Fetcher) ShouldContinueDownload(iconURL string, body []byte) bool {
	if len(body) > maxIconBytes {
		atomic.AddInt32(&f.skipped, 1)
		f.progress(progress.Event{Message: fmt.Sprintf("Icon too large: %s", iconURL), Level: progress.LevelVerbose})
		return false
	}
	if ct := http.DetectContentType(body); !strings.HasPrefix(ct, "image/") {
		atomic.AddInt32(&f.skipped, 1)
		f.progress(progress.Event{Message: fmt.Sprintf("Not an image: %s", iconURL), Level: progress.LevelVerbose})
		return false
	}
	return true
}

// DidCompleteDownload scales the icon to a square PNG and writes it.
// Formats the image decoder does not know (typically ICO) are written
// verbatim instead.
func (f *Fetcher) DidCompleteDownload(iconURL string, resp *http.Response, body []byte, err error, done func()) {
	defer done()

	if err != nil {
		atomic.AddInt32(&f.failed, 1)
		f.progress(progress.Event{Message: fmt.Sprintf("Error fetching icon %s: %v", iconURL, err), Level: progress.LevelVerbose})
		return
	}

	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	data := body
	ext := ".png"
	if thumb, terr := f.images.SquareThumbnail(ctx, body, f.size); terr == nil {
		data = thumb
	} else {
		ext = extensionForImage(body)
		f.log.V(1).Info("icon kept unscaled", "url", iconURL, "reason", terr.Error())
	}

	path := filepath.Join(f.dir, iconFileName(iconURL)+ext)
	if werr := ioutils.WriteFileAtomic(ctx, path, data); werr != nil {
		atomic.AddInt32(&f.failed, 1)
		f.progress(progress.Event{Message: fmt.Sprintf("Error saving icon %s: %v", iconURL, werr), Level: progress.LevelWarning})
		return
	}

	atomic.AddInt32(&f.saved, 1)
	f.progress(progress.Event{Message: fmt.Sprintf("Saved icon: %s", filepath.Base(path)), Level: progress.LevelVerbose})
}

// DidReceiveNotModified is unreachable in practice: icon requests carry
// no cache validators.
func (f *Fetcher) DidReceiveNotModified(iconURL string, resp *http.Response) {
	f.log.V(1).Info("unexpected 304 for icon", "url", iconURL)
}

// DidReceiveUnexpectedResponse records a missing icon. Hosts without a
// favicon are routine, so this is not a warning.
func (f *Fetcher) DidReceiveUnexpectedResponse(iconURL string, resp *http.Response) {
	atomic.AddInt32(&f.failed, 1)
	f.progress(progress.Event{Message: fmt.Sprintf("No icon at %s (%d)", iconURL, resp.StatusCode), Level: progress.LevelVerbose})
}

// DidDiscardDuplicate is unreachable in practice: Fetch dedupes URLs
// before submitting.
func (f *Fetcher) DidDiscardDuplicate(iconURL string) {
	f.log.V(1).Info("duplicate icon submission", "url", iconURL)
}

// DidFinishBatch wakes the Fetch call.
func (f *Fetcher) DidFinishBatch() {
	select {
	case f.batchDone <- struct{}{}:
	default:
	}
}

func (f *Fetcher) snapshot(requested int) Stats {
	return Stats{
		Requested: requested,
		Saved:     int(atomic.LoadInt32(&f.saved)),
		Skipped:   int(atomic.LoadInt32(&f.skipped)),
		Failed:    int(atomic.LoadInt32(&f.failed)),
	}
}

func (f *Fetcher) progress(event progress.Event) {
	if f.onProgress != nil {
		f.onProgress(event)
	}
}

// iconFileName names an icon file after its host.
func iconFileName(iconURL string) string {
	u, err := url.Parse(iconURL)
	if err != nil || u.Hostname() == "" {
		return ioutils.SanitizeFileName(iconURL)
	}
	return ioutils.SanitizeFileName(u.Hostname())
}

// extensionForImage picks a file extension from the image's sniffed type.
func extensionForImage(body []byte) string {
	switch http.DetectContentType(body) {
	case "image/x-icon":
		return ".ico"
	case "image/gif":
		return ".gif"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
