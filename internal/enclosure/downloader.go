package enclosure

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/VonLuderitz/NetNewsWire/internal/audio"
	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/download"
	ioutils "github.com/VonLuderitz/NetNewsWire/internal/io"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
)

// maxArtworkBytes caps an artwork body before its transfer is abandoned.
const maxArtworkBytes = 10 << 20

// Stats summarizes one enclosure download pass.
type Stats struct {
	// Requested is how many episodes were submitted.
	Requested int

	// Downloaded counts episode files written to disk.
	Downloaded int

	// Skipped counts transfers abandoned for exceeding the size cap.
	Skipped int

	// Failed counts transport errors, write errors, and unexpected
	// responses.
	Failed int

	// Duplicates counts submissions discarded as already in the batch.
	Duplicates int

	// Bytes is the total size of all downloaded episode files.
	Bytes int64
}

// Downloader batch-downloads podcast enclosures through a download
// session. Completed bodies land at each episode's computed path via a
// uniquely named temp file and a rename, get their ID3 tags written, and
// can be collected into per-show playlists.
type Downloader struct {
	session  *download.Session[*model.Episode]
	tagger   *audio.Tagger
	playlist *audio.PlaylistCreator
	images   *ioutils.ImageService
	epCfg    *model.EpisodeConfig
	log      logr.Logger

	sessionOpts    download.Options
	maxBytes       int64
	modifyTags     bool
	saveArtwork    bool
	convertJPG     bool
	artworkMax     int
	createPlaylist bool

	onProgress func(progress.Event)

	mu        sync.Mutex
	ctx       context.Context
	artwork   map[string][]byte // artwork URL -> prepared image bytes
	completed []*model.Episode
	batchDone chan struct{}

	downloaded int32
	skipped    int32
	failed     int32
	duplicates int32
	bytes      int64
}

var _ download.Delegate[*model.Episode] = (*Downloader)(nil)

// NewDownloader creates a Downloader configured from settings.
// onProgress may be nil; when set it must be safe to call from multiple
// goroutines.
func NewDownloader(settings *config.Settings, log logr.Logger, onProgress func(progress.Event)) *Downloader {
	epCfg := settings.ToEpisodeConfig()

	d := &Downloader{
		tagger:   audio.NewTagger(audio.DefaultTagConfig()),
		playlist: audio.NewPlaylistCreator(epCfg.PlaylistFormat, settings.M3UExtended),
		images:   ioutils.NewImageService(),
		epCfg:    epCfg,
		log:      log.WithName("enclosure"),

		maxBytes:       settings.MaxEnclosureBytes,
		modifyTags:     settings.ModifyTags,
		saveArtwork:    settings.SaveArtworkInTags,
		convertJPG:     settings.ConvertArtworkToJPG,
		artworkMax:     settings.ArtworkMaxSize,
		createPlaylist: settings.CreatePlaylist,

		onProgress: onProgress,
		batchDone:  make(chan struct{}, 1),
	}
	d.sessionOpts = download.Options{
		MaxConcurrentDownloads: settings.MaxConcurrentDownloads,
		MaxConnectionsPerHost:  settings.MaxConnectionsPerHost,
		Timeout:                time.Duration(settings.DownloadTimeoutSeconds) * time.Second,
		UserAgent:              settings.UserAgent,
		RedirectBlacklist:      settings.RedirectBlacklist,
		Logger:                 log,
	}
	d.session = download.NewSession[*model.Episode](d.sessionOpts, d)
	return d
}

// Close releases the downloader's session.
func (d *Downloader) Close() {
	d.session.Close()
}

// Download fetches the given episodes and blocks until every one has
// been accounted for, then writes playlists for the completed shows.
// Run one Download at a time per Downloader.
func (d *Downloader) Download(ctx context.Context, episodes []*model.Episode) (Stats, error) {
	if len(episodes) == 0 {
		return Stats{}, nil
	}

	d.mu.Lock()
	d.ctx = ctx
	d.completed = nil
	d.mu.Unlock()
	atomic.StoreInt32(&d.downloaded, 0)
	atomic.StoreInt32(&d.skipped, 0)
	atomic.StoreInt32(&d.failed, 0)
	atomic.StoreInt32(&d.duplicates, 0)
	atomic.StoreInt64(&d.bytes, 0)

	select {
	case <-d.batchDone:
	default:
	}

	if d.saveArtwork {
		d.prepareArtwork(ctx, episodes)
	}

	d.progress(progress.Event{Message: fmt.Sprintf("Downloading %d episodes", len(episodes)), Level: progress.LevelInfo})
	d.session.Download(episodes...)

	select {
	case <-d.batchDone:
	case <-ctx.Done():
		d.session.CancelAll()
		return d.snapshot(len(episodes)), ctx.Err()
	}

	if d.createPlaylist {
		d.writePlaylists(ctx)
	}

	stats := d.snapshot(len(episodes))
	if stats.Failed == 0 && stats.Skipped == 0 {
		d.progress(progress.Event{Message: fmt.Sprintf("Downloaded %d episodes", stats.Downloaded), Level: progress.LevelSuccess})
	} else {
		d.progress(progress.Event{Message: fmt.Sprintf("Finished with %d downloaded, %d skipped, %d failed", stats.Downloaded, stats.Skipped, stats.Failed), Level: progress.LevelWarning})
	}
	return stats, nil
}

// RequestForObject builds the enclosure GET request.
func (d *Downloader) RequestForObject(ep *model.Episode) *http.Request {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.EnclosureURL, nil)
	if err != nil {
		d.progress(progress.Event{Message: fmt.Sprintf("Skipping %s: %v", ep.Title, err), Level: progress.LevelWarning})
		return nil
	}
	return req
}

// ShouldContinueDownload abandons enclosures that grow past the
// configured size cap. A zero cap means unlimited.
func (d *Downloader) ShouldContinueDownload(ep *model.Episode, body []byte) bool {
	if d.maxBytes > 0 && int64(len(body)) > d.maxBytes {
		atomic.AddInt32(&d.skipped, 1)
		d.progress(progress.Event{Message: fmt.Sprintf("Skipping %s: larger than %d bytes", ep.Title, d.maxBytes), Level: progress.LevelWarning})
		return false
	}
	return true
}

// DidCompleteDownload writes the episode file and tags it, then
// acknowledges so the session can retire the transfer.
func (d *Downloader) DidCompleteDownload(ep *model.Episode, resp *http.Response, body []byte, err error, done func()) {
	defer done()

	if err != nil {
		atomic.AddInt32(&d.failed, 1)
		d.progress(progress.Event{Message: fmt.Sprintf("Error downloading %s: %v", ep.Title, err), Level: progress.LevelError})
		return
	}

	if werr := d.writeEpisodeFile(ep, body); werr != nil {
		atomic.AddInt32(&d.failed, 1)
		d.progress(progress.Event{Message: fmt.Sprintf("Error writing %s: %v", ep.Title, werr), Level: progress.LevelError})
		return
	}

	artwork := d.artworkFor(ep)
	if d.modifyTags || artwork != nil {
		if terr := d.tagger.SaveTags(ep, artwork); terr != nil {
			d.progress(progress.Event{Message: fmt.Sprintf("Error tagging %s: %v", ep.Title, terr), Level: progress.LevelWarning})
		}
	}

	atomic.AddInt32(&d.downloaded, 1)
	atomic.AddInt64(&d.bytes, int64(len(body)))
	d.mu.Lock()
	d.completed = append(d.completed, ep)
	d.mu.Unlock()

	d.progress(progress.Event{Message: fmt.Sprintf("Downloaded: %s", filepath.Base(ep.Path)), Level: progress.LevelVerbose})
}

// writeEpisodeFile lands body at ep.Path through a uniquely named temp
// file in the same directory, so a concurrent pass never sees a partial
// episode.
func (d *Downloader) writeEpisodeFile(ep *model.Episode, body []byte) error {
	if err := ioutils.EnsureDir(ep.Dir()); err != nil {
		return err
	}

	tmp := filepath.Join(ep.Dir(), "."+uuid.NewString()+".part")
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, ep.Path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// DidReceiveNotModified is unreachable in practice: enclosure requests
// carry no cache validators.
func (d *Downloader) DidReceiveNotModified(ep *model.Episode, resp *http.Response) {
	d.log.V(1).Info("unexpected 304 for enclosure", "url", ep.EnclosureURL)
}

// DidReceiveUnexpectedResponse records a failed episode.
func (d *Downloader) DidReceiveUnexpectedResponse(ep *model.Episode, resp *http.Response) {
	atomic.AddInt32(&d.failed, 1)
	d.progress(progress.Event{Message: fmt.Sprintf("Unexpected response %d for %s", resp.StatusCode, ep.Title), Level: progress.LevelWarning})
}

// DidDiscardDuplicate records an episode submitted twice in one batch.
func (d *Downloader) DidDiscardDuplicate(ep *model.Episode) {
	atomic.AddInt32(&d.duplicates, 1)
	d.progress(progress.Event{Message: fmt.Sprintf("Duplicate in batch: %s", ep.Title), Level: progress.LevelVerbose})
}

// DidFinishBatch wakes the Download call.
func (d *Downloader) DidFinishBatch() {
	select {
	case d.batchDone <- struct{}{}:
	default:
	}
}

// prepareArtwork fetches each distinct artwork URL once and scales the
// results for tag embedding.
func (d *Downloader) prepareArtwork(ctx context.Context, episodes []*model.Episode) {
	seen := make(map[string]struct{})
	var urls []string
	for _, ep := range episodes {
		if !ep.HasArtwork() {
			continue
		}
		if _, dup := seen[ep.ArtworkURL]; dup {
			continue
		}
		seen[ep.ArtworkURL] = struct{}{}
		urls = append(urls, ep.ArtworkURL)
	}
	if len(urls) == 0 {
		return
	}

	bodies := d.fetchArtwork(ctx, urls)

	prepared := make(map[string][]byte, len(bodies))
	for artURL, raw := range bodies {
		art := raw
		if d.artworkMax > 0 {
			if resized, err := d.images.ResizeImage(ctx, art, d.artworkMax, d.artworkMax); err == nil {
				art = resized
			} else {
				d.log.V(1).Info("artwork kept unscaled", "url", artURL, "reason", err.Error())
			}
		}
		if d.convertJPG {
			if converted, err := d.images.ConvertToJPEG(ctx, art); err == nil {
				art = converted
			}
		}
		prepared[artURL] = art
	}

	d.mu.Lock()
	d.artwork = prepared
	d.mu.Unlock()
}

// fetchArtwork downloads urls through a short-lived session and returns
// the bodies that arrived intact.
func (d *Downloader) fetchArtwork(ctx context.Context, urls []string) map[string][]byte {
	col := &artworkCollector{
		ctx:       ctx,
		bodies:    make(map[string][]byte, len(urls)),
		batchDone: make(chan struct{}, 1),
		log:       d.log,
	}
	session := download.NewSession[string](d.sessionOpts, col)
	defer session.Close()

	session.Download(urls...)
	select {
	case <-col.batchDone:
	case <-ctx.Done():
		session.CancelAll()
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	return col.bodies
}

func (d *Downloader) artworkFor(ep *model.Episode) []byte {
	if !d.saveArtwork || !ep.HasArtwork() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.artwork[ep.ArtworkURL]
}

// writePlaylists emits one playlist per show that had a completed
// episode this pass.
func (d *Downloader) writePlaylists(ctx context.Context) {
	d.mu.Lock()
	completed := make([]*model.Episode, len(d.completed))
	copy(completed, d.completed)
	d.mu.Unlock()

	byShow := make(map[string][]*model.Episode)
	var shows []string
	for _, ep := range completed {
		if _, ok := byShow[ep.Show]; !ok {
			shows = append(shows, ep.Show)
		}
		byShow[ep.Show] = append(byShow[ep.Show], ep)
	}

	for _, show := range shows {
		content := d.playlist.CreatePlaylist(show, byShow[show])
		path := model.PlaylistPath(show, d.epCfg)
		if err := ioutils.WriteFile(ctx, path, []byte(content)); err != nil {
			d.progress(progress.Event{Message: fmt.Sprintf("Error creating playlist for %s: %v", show, err), Level: progress.LevelWarning})
			continue
		}
		d.progress(progress.Event{Message: fmt.Sprintf("Created playlist for %s", show), Level: progress.LevelSuccess})
	}
}

func (d *Downloader) snapshot(requested int) Stats {
	return Stats{
		Requested:  requested,
		Downloaded: int(atomic.LoadInt32(&d.downloaded)),
		Skipped:    int(atomic.LoadInt32(&d.skipped)),
		Failed:     int(atomic.LoadInt32(&d.failed)),
		Duplicates: int(atomic.LoadInt32(&d.duplicates)),
		Bytes:      atomic.LoadInt64(&d.bytes),
	}
}

func (d *Downloader) progress(event progress.Event) {
	if d.onProgress != nil {
		d.onProgress(event)
	}
}

// artworkCollector is the delegate for the short-lived artwork session:
// it gathers bodies by URL and signals when the batch drains.
type artworkCollector struct {
	ctx       context.Context
	batchDone chan struct{}
	log       logr.Logger

	mu     sync.Mutex
	bodies map[string][]byte
}

var _ download.Delegate[string] = (*artworkCollector)(nil)

func (c *artworkCollector) RequestForObject(artURL string) *http.Request {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, artURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	return req
}

func (c *artworkCollector) ShouldContinueDownload(artURL string, body []byte) bool {
	return len(body) <= maxArtworkBytes
}

func (c *artworkCollector) DidCompleteDownload(artURL string, resp *http.Response, body []byte, err error, done func()) {
	defer done()
	if err != nil {
		c.log.V(1).Info("artwork fetch failed", "url", artURL, "reason", err.Error())
		return
	}
	c.mu.Lock()
	c.bodies[artURL] = body
	c.mu.Unlock()
}

func (c *artworkCollector) DidReceiveNotModified(artURL string, resp *http.Response) {}

func (c *artworkCollector) DidReceiveUnexpectedResponse(artURL string, resp *http.Response) {
	c.log.V(1).Info("artwork fetch failed", "url", artURL, "status", resp.StatusCode)
}

func (c *artworkCollector) DidDiscardDuplicate(artURL string) {}

func (c *artworkCollector) DidFinishBatch() {
	select {
	case c.batchDone <- struct{}{}:
	default:
	}
}
