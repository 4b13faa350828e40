package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/download"
	"github.com/VonLuderitz/NetNewsWire/internal/httpcache"
	ioutils "github.com/VonLuderitz/NetNewsWire/internal/io"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
)

// ErrRefreshInProgress is returned by Refresh when the refresher is
// already running a batch.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// feedAccept is the Accept header sent with every feed request.
const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"

// Stats summarizes one refresh pass.
type Stats struct {
	// Submitted is how many feeds were handed to the session.
	Submitted int

	// Refreshed counts feeds whose new content was archived.
	Refreshed int

	// Unchanged counts feeds the server answered 304 for.
	Unchanged int

	// Failed counts transport errors, archive errors, and unexpected
	// responses (including 429s).
	Failed int

	// Duplicates counts submissions discarded as already in the batch.
	Duplicates int

	// Bytes is the total size of all archived feed bodies.
	Bytes int64
}

// Dropped returns the count of submissions that produced no outcome:
// feeds with unusable URLs and feeds whose host was inside a rate-limit
// cooldown at dispatch time.
func (s Stats) Dropped() int {
	d := s.Submitted - s.Refreshed - s.Unchanged - s.Failed - s.Duplicates
	if d < 0 {
		return 0
	}
	return d
}

// Refresher fetches a set of feeds through a download session and
// archives each body verbatim. It is the session's delegate: conditional
// headers come from the cache store on the way out, and completed bodies
// are written atomically under the archive dir on the way back.
//
// A Refresher runs one batch at a time. Use RefreshAll to refresh
// several collections concurrently, each through its own Refresher.
type Refresher struct {
	session   *download.Session[*model.Feed]
	store     *httpcache.Store // nil disables conditional requests
	limiter   *rate.Limiter    // nil disables submission pacing
	chunkSize int
	log       logr.Logger

	onProgress func(progress.Event)

	mu         sync.Mutex
	refreshing bool
	ctx        context.Context
	// drained is set by DidFinishBatch and cleared before each chunk
	// submission, so a drain between chunks does not end the refresh
	// early. Once submitDone is set, a drain is final.
	drained    bool
	submitDone bool
	batchDone  chan struct{}

	submitted  int32
	refreshed  int32
	unchanged  int32
	failed     int32
	duplicates int32
	bytes      int64
}

var _ download.Delegate[*model.Feed] = (*Refresher)(nil)

// NewRefresher creates a Refresher. store may be nil, in which case every
// fetch is unconditional. onProgress may be nil; when set it must be safe
// to call from multiple goroutines.
func NewRefresher(settings *config.Settings, store *httpcache.Store, log logr.Logger, onProgress func(progress.Event)) *Refresher {
	r := &Refresher{
		store:      store,
		chunkSize:  settings.SubmitChunkSize,
		log:        log.WithName("refresh"),
		onProgress: onProgress,
		batchDone:  make(chan struct{}, 1),
	}
	if settings.SubmitChunksPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(settings.SubmitChunksPerSecond), 1)
	}
	r.session = download.NewSession[*model.Feed](download.Options{
		MaxConcurrentDownloads: settings.MaxConcurrentDownloads,
		MaxConnectionsPerHost:  settings.MaxConnectionsPerHost,
		Timeout:                time.Duration(settings.DownloadTimeoutSeconds) * time.Second,
		UserAgent:              settings.UserAgent,
		RedirectBlacklist:      settings.RedirectBlacklist,
		Logger:                 log,
	}, r)
	return r
}

// Close releases the refresher's download session.
func (r *Refresher) Close() {
	r.session.Close()
}

// Counts returns the session's in-flight and queued counts, for progress
// display.
func (r *Refresher) Counts() (inFlight, pending int) {
	return r.session.Counts()
}

// Progress returns a snapshot of the running pass's stats. Safe to call
// from any goroutine while Refresh is in flight.
func (r *Refresher) Progress() Stats {
	return r.snapshot()
}

// Refresh submits feeds and blocks until every one of them has been
// accounted for, then returns the pass's stats. Submission happens in
// chunks, paced by the configured limiter.
//
// Cancel via ctx: in-flight transfers are torn down and Refresh returns
// the context's error with partial stats.
func (r *Refresher) Refresh(ctx context.Context, feeds []*model.Feed) (Stats, error) {
	if len(feeds) == 0 {
		return Stats{}, nil
	}

	r.mu.Lock()
	if r.refreshing {
		r.mu.Unlock()
		return Stats{}, ErrRefreshInProgress
	}
	r.refreshing = true
	r.submitDone = false
	r.drained = false
	r.ctx = ctx
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.refreshing = false
		r.mu.Unlock()
	}()

	// Drop any stale completion signal from an earlier pass.
	select {
	case <-r.batchDone:
	default:
	}

	r.resetCounters(len(feeds))
	r.progress(progress.Event{Message: fmt.Sprintf("Refreshing %d feeds", len(feeds)), Level: progress.LevelInfo})

	chunk := r.chunkSize
	if chunk <= 0 || chunk > len(feeds) {
		chunk = len(feeds)
	}
	for start := 0; start < len(feeds); start += chunk {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.session.CancelAll()
				return r.snapshot(), err
			}
		}
		end := min(start+chunk, len(feeds))
		r.mu.Lock()
		r.drained = false
		r.mu.Unlock()
		r.session.Download(feeds[start:end]...)
	}

	r.mu.Lock()
	r.submitDone = true
	finished := r.drained
	r.mu.Unlock()
	if !finished {
		select {
		case <-r.batchDone:
		case <-ctx.Done():
			r.session.CancelAll()
			return r.snapshot(), ctx.Err()
		}
	}

	stats := r.snapshot()
	if stats.Failed == 0 {
		r.progress(progress.Event{Message: fmt.Sprintf("Refresh complete: %d refreshed, %d unchanged", stats.Refreshed, stats.Unchanged), Level: progress.LevelSuccess})
	} else {
		r.progress(progress.Event{Message: fmt.Sprintf("Refresh finished with %d failures (%d refreshed, %d unchanged)", stats.Failed, stats.Refreshed, stats.Unchanged), Level: progress.LevelWarning})
	}
	return stats, nil
}

// RequestForObject builds the conditional GET for a feed. Feeds with
// unusable URLs are dropped.
func (r *Refresher) RequestForObject(feed *model.Feed) *http.Request {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		r.progress(progress.Event{Message: fmt.Sprintf("Skipping %s: %v", feed.URL, err), Level: progress.LevelWarning})
		return nil
	}
	req.Header.Set("Accept", feedAccept)

	if r.store != nil {
		rec, err := r.store.Lookup(feed.URL)
		if err != nil {
			r.log.Error(err, "cache lookup failed", "url", feed.URL)
		} else {
			rec.ApplyConditionalHeaders(req)
		}
	}
	return req
}

// DidReceiveNotModified records a 304: the archived copy is still
// current, so only the cache store's fetch time moves.
func (r *Refresher) DidReceiveNotModified(feed *model.Feed, resp *http.Response) {
	atomic.AddInt32(&r.unchanged, 1)
	if r.store != nil {
		if err := r.store.Touch(feed.URL, resp.StatusCode, time.Now()); err != nil {
			r.log.Error(err, "cache touch failed", "url", feed.URL)
		}
	}
	r.progress(progress.Event{Message: fmt.Sprintf("Not modified: %s", feed.DisplayTitle()), Level: progress.LevelVerbose})
}

// DidReceiveUnexpectedResponse records a non-OK status as a failure.
func (r *Refresher) DidReceiveUnexpectedResponse(feed *model.Feed, resp *http.Response) {
	atomic.AddInt32(&r.failed, 1)
	if resp.StatusCode == http.StatusTooManyRequests {
		r.progress(progress.Event{Message: fmt.Sprintf("Rate limited: %s", feed.URL), Level: progress.LevelWarning})
		return
	}
	r.progress(progress.Event{Message: fmt.Sprintf("Unexpected response %d for %s", resp.StatusCode, feed.URL), Level: progress.LevelWarning})
}

// ShouldContinueDownload never aborts: feed documents are small.
func (r *Refresher) ShouldContinueDownload(feed *model.Feed, body []byte) bool {
	return true
}

// DidCompleteDownload archives the feed body and updates the cache
// store, then acknowledges so the session can retire the transfer.
func (r *Refresher) DidCompleteDownload(feed *model.Feed, resp *http.Response, body []byte, err error, done func()) {
	defer done()

	if err != nil {
		atomic.AddInt32(&r.failed, 1)
		r.progress(progress.Event{Message: fmt.Sprintf("Error refreshing %s: %v", feed.URL, err), Level: progress.LevelError})
		return
	}

	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if werr := ioutils.WriteFileAtomic(ctx, feed.ArchivePath, body); werr != nil {
		atomic.AddInt32(&r.failed, 1)
		r.progress(progress.Event{Message: fmt.Sprintf("Error archiving %s: %v", feed.URL, werr), Level: progress.LevelError})
		return
	}

	atomic.AddInt32(&r.refreshed, 1)
	atomic.AddInt64(&r.bytes, int64(len(body)))

	if r.store != nil {
		if serr := r.store.Save(httpcache.RecordFrom(feed.URL, resp, time.Now())); serr != nil {
			r.log.Error(serr, "cache save failed", "url", feed.URL)
		}
	}

	r.progress(progress.Event{Message: fmt.Sprintf("Refreshed: %s (%d bytes)", feed.DisplayTitle(), len(body)), Level: progress.LevelVerbose})
}

// DidDiscardDuplicate records a feed submitted twice in one batch.
func (r *Refresher) DidDiscardDuplicate(feed *model.Feed) {
	atomic.AddInt32(&r.duplicates, 1)
	r.progress(progress.Event{Message: fmt.Sprintf("Duplicate in batch: %s", feed.URL), Level: progress.LevelVerbose})
}

// DidFinishBatch wakes the Refresh call once all submitted feeds are
// accounted for. Drains observed while chunks are still being submitted
// only mark the flag; Refresh clears it before the next chunk.
func (r *Refresher) DidFinishBatch() {
	r.mu.Lock()
	r.drained = true
	signal := r.submitDone
	r.mu.Unlock()

	if signal {
		select {
		case r.batchDone <- struct{}{}:
		default:
		}
	}
}

func (r *Refresher) resetCounters(submitted int) {
	atomic.StoreInt32(&r.submitted, int32(submitted))
	atomic.StoreInt32(&r.refreshed, 0)
	atomic.StoreInt32(&r.unchanged, 0)
	atomic.StoreInt32(&r.failed, 0)
	atomic.StoreInt32(&r.duplicates, 0)
	atomic.StoreInt64(&r.bytes, 0)
}

func (r *Refresher) snapshot() Stats {
	return Stats{
		Submitted:  int(atomic.LoadInt32(&r.submitted)),
		Refreshed:  int(atomic.LoadInt32(&r.refreshed)),
		Unchanged:  int(atomic.LoadInt32(&r.unchanged)),
		Failed:     int(atomic.LoadInt32(&r.failed)),
		Duplicates: int(atomic.LoadInt32(&r.duplicates)),
		Bytes:      atomic.LoadInt64(&r.bytes),
	}
}

func (r *Refresher) progress(event progress.Event) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}

// Collection names a group of feeds refreshed together through one
// session.
type Collection struct {
	Name  string
	Feeds []*model.Feed
}

// CollectionResult reports the outcome of one collection's refresh.
type CollectionResult struct {
	Name  string
	Stats Stats
	Err   error
}

// RefreshAll refreshes several collections concurrently, each through
// its own Refresher, with at most settings.MaxConcurrentCollections
// running at once. A failed collection does not stop the others; its
// error lands in the corresponding result.
func RefreshAll(ctx context.Context, collections []Collection, settings *config.Settings, store *httpcache.Store, log logr.Logger, onProgress func(progress.Event)) []CollectionResult {
	results := make([]CollectionResult, len(collections))

	g, ctx := errgroup.WithContext(ctx)
	limit := settings.MaxConcurrentCollections
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, col := range collections {
		g.Go(func() error {
			r := NewRefresher(settings, store, log, onProgress)
			defer r.Close()
			stats, err := r.Refresh(ctx, col.Feeds)
			results[i] = CollectionResult{Name: col.Name, Stats: stats, Err: err}
			return nil
		})
	}

	g.Wait()
	return results
}
