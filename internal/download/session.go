package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultMaxConcurrentDownloads caps how many transfers a session
	// dispatches at once before queueing.
	DefaultMaxConcurrentDownloads = 500

	// DefaultMaxConnectionsPerHost is the transport-level cap on parallel
	// connections to a single host. One connection per host keeps a large
	// session polite toward individual origins even at full budget.
	DefaultMaxConnectionsPerHost = 1

	// DefaultTimeout bounds a single transfer end to end.
	DefaultTimeout = 60 * time.Second

	readChunkSize = 32 * 1024
	maxRedirects  = 10
)

// DefaultRedirectBlacklist lists target substrings that indicate an auth
// wall rather than a genuine permanent move. Redirects to such targets are
// followed but never cached.
var DefaultRedirectBlacklist = []string{"login", "signin", "sign-in", "account"}

// Options configures a Session. The zero value is usable; zero fields fall
// back to the package defaults.
type Options struct {
	// MaxConcurrentDownloads caps simultaneously dispatched transfers.
	MaxConcurrentDownloads int

	// MaxConnectionsPerHost caps parallel connections per host at the
	// transport. Ignored when Transport is set.
	MaxConnectionsPerHost int

	// Timeout bounds each transfer, headers through body.
	Timeout time.Duration

	// UserAgent is applied to outgoing requests that do not already
	// carry a User-Agent header. Empty leaves requests untouched.
	UserAgent string

	// RedirectBlacklist suppresses caching of permanent redirects whose
	// target contains any of these substrings, matched case-insensitively.
	// Nil means DefaultRedirectBlacklist; an empty non-nil slice disables
	// the filter.
	RedirectBlacklist []string

	// Transport overrides the session's RoundTripper, mainly for tests.
	Transport http.RoundTripper

	// Logger receives lifecycle and error logs. The zero value discards.
	Logger logr.Logger
}

// Session coordinates a large, dynamic set of concurrent HTTP fetches.
//
// Callers submit batches of represented objects — opaque comparable values
// standing in for "the resource to download" — and observe every outcome
// through the Delegate. The session deduplicates objects within a batch,
// admits transfers against a global concurrency budget, queues the
// overflow, consults its redirect cache and per-host rate-limit registry
// before dispatch, and reports batch completion once everything submitted
// has been accounted for.
//
// All methods are safe for concurrent use.
type Session[T comparable] struct {
	delegate Delegate[T]
	client   *http.Client
	opts     Options
	log      logr.Logger

	redirects  *RedirectCache
	rateLimits *RateLimitRegistry

	mu      sync.Mutex
	tracked map[T]struct{} // objects accepted into the current batch
	pending []T            // overflow stack; serviced newest-first
	tasks   map[int64]*task[T]
	nextID  int64
	// admitting counts submissions and promotions currently running
	// outside the lock; the batch cannot drain while any are live.
	admitting int
	closed    bool
}

// task tracks one active transfer from dispatch to removal.
type task[T comparable] struct {
	id     int64
	object T
	req    *http.Request
	cancel context.CancelFunc

	// body and resp are written only by the transfer's own goroutine.
	body []byte
	resp *http.Response

	canceled atomic.Bool
}

// NewSession creates a session delivering all outcomes to delegate.
func NewSession[T comparable](opts Options, delegate Delegate[T]) *Session[T] {
	if delegate == nil {
		panic("download: nil delegate")
	}
	if opts.MaxConcurrentDownloads <= 0 {
		opts.MaxConcurrentDownloads = DefaultMaxConcurrentDownloads
	}
	if opts.MaxConnectionsPerHost <= 0 {
		opts.MaxConnectionsPerHost = DefaultMaxConnectionsPerHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RedirectBlacklist == nil {
		opts.RedirectBlacklist = DefaultRedirectBlacklist
	}
	if opts.Logger.IsZero() {
		opts.Logger = logr.Discard()
	}

	s := &Session[T]{
		delegate:   delegate,
		opts:       opts,
		log:        opts.Logger.WithName("download"),
		redirects:  NewRedirectCache(opts.RedirectBlacklist),
		rateLimits: NewRateLimitRegistry(),
		tracked:    make(map[T]struct{}),
		tasks:      make(map[int64]*task[T]),
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			MaxConnsPerHost: opts.MaxConnectionsPerHost,
		}
	}
	s.client = &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: s.checkRedirect,
	}

	return s
}

// Download submits a batch of represented objects. Objects already tracked
// by the current batch are reported through DidDiscardDuplicate and not
// fetched again. The call does not block on network work; every outcome
// arrives through the delegate. Calling Download on a closed session is a
// no-op.
func (s *Session[T]) Download(objects ...T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fresh := make([]T, 0, len(objects))
	var duplicates []T
	for _, obj := range objects {
		if _, ok := s.tracked[obj]; ok {
			duplicates = append(duplicates, obj)
			continue
		}
		s.tracked[obj] = struct{}{}
		fresh = append(fresh, obj)
	}
	s.admitting++
	s.mu.Unlock()

	for _, obj := range duplicates {
		s.delegate.DidDiscardDuplicate(obj)
	}
	for _, obj := range fresh {
		s.admit(obj)
	}

	s.mu.Lock()
	s.admitting--
	fire := s.drainedLocked()
	s.mu.Unlock()
	if fire {
		s.delegate.DidFinishBatch()
	}
}

// CancelAll cancels every in-flight transfer and drops everything queued.
// Transfers disappear from the session's bookkeeping immediately; their
// goroutines unwind without delegate callbacks as the cancellations
// surface.
func (s *Session[T]) CancelAll() {
	s.mu.Lock()
	canceled := make([]*task[T], 0, len(s.tasks))
	for id, t := range s.tasks {
		t.canceled.Store(true)
		delete(s.tasks, id)
		canceled = append(canceled, t)
	}
	s.pending = nil
	fire := s.drainedLocked()
	s.mu.Unlock()

	for _, t := range canceled {
		t.cancel()
	}
	if fire {
		s.delegate.DidFinishBatch()
	}
}

// Close cancels all work and releases the session's transport resources.
// The session accepts no submissions afterwards.
func (s *Session[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.CancelAll()
	s.client.CloseIdleConnections()
}

// Counts returns the number of in-flight transfers and queued objects.
func (s *Session[T]) Counts() (inFlight, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks), len(s.pending)
}

// admit dispatches obj, or queues it when the concurrency budget is spent.
// Objects for which the delegate declines to build a request, and objects
// whose host is inside a rate-limit cooldown, are dropped without
// callbacks: deferred, not failed.
func (s *Session[T]) admit(obj T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.tasks) >= s.opts.MaxConcurrentDownloads {
		s.pending = append(s.pending, obj)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	req := s.delegate.RequestForObject(obj)
	if req == nil || req.URL == nil {
		return
	}

	// A previously observed permanent redirect means the old URL's
	// content now lives elsewhere; go there directly.
	if target, ok := s.redirects.Resolve(req.URL.String()); ok {
		if u, err := url.Parse(target); err == nil {
			req = req.Clone(req.Context())
			req.URL = u
			req.Host = ""
		}
	}

	if s.opts.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}

	host := req.URL.Hostname()
	if s.rateLimits.IsBlocked(host) {
		s.log.V(1).Info("dropped submission for rate-limited host", "host", host)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	t := &task[T]{object: obj, req: req.WithContext(ctx), cancel: cancel}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	if len(s.tasks) >= s.opts.MaxConcurrentDownloads {
		// The budget filled while the request was being built.
		s.pending = append(s.pending, obj)
		s.mu.Unlock()
		cancel()
		return
	}
	s.nextID++
	t.id = s.nextID
	if _, exists := s.tasks[t.id]; exists {
		s.mu.Unlock()
		panic(fmt.Sprintf("download: task id %d already registered", t.id))
	}
	s.tasks[t.id] = t
	s.mu.Unlock()

	go s.run(t)
}

// run drives one transfer: headers, classification, body, completion.
func (s *Session[T]) run(t *task[T]) {
	resp, err := s.client.Do(t.req)
	if err != nil {
		if t.canceled.Load() {
			// Our own cancellation surfacing; bookkeeping is
			// already clear.
			return
		}
		s.complete(t, err)
		return
	}
	t.resp = resp
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		t.abort()
		if s.claim(t) {
			s.delegate.DidReceiveNotModified(t.object, resp)
			s.promoteOnePending()
		}

	case !statusOK(resp.StatusCode):
		t.abort()
		if !s.claim(t) {
			return
		}
		s.delegate.DidReceiveUnexpectedResponse(t.object, resp)
		if resp.StatusCode == http.StatusTooManyRequests {
			s.applyRateLimit(resp)
		}
		s.promoteOnePending()

	default:
		// Headers are in and the slot stays occupied while the body
		// streams; top off concurrency from the queue meanwhile.
		s.promoteOnePending()
		s.receiveBody(t, resp)
	}
}

// receiveBody streams resp's body into t in chunks, consulting the
// delegate after each one.
func (s *Session[T]) receiveBody(t *task[T], resp *http.Response) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			t.body = append(t.body, buf[:n]...)
			if !s.delegate.ShouldContinueDownload(t.object, t.body) {
				// Caller-initiated abort: silent, no completion.
				t.abort()
				if s.claim(t) {
					s.promoteOnePending()
				}
				return
			}
		}
		if err == io.EOF {
			s.complete(t, nil)
			return
		}
		if err != nil {
			if t.canceled.Load() {
				return
			}
			s.complete(t, err)
			return
		}
	}
}

// complete delivers the final outcome for t. The transfer keeps its slot —
// and the batch stays open — until the delegate acknowledges through done.
func (s *Session[T]) complete(t *task[T], err error) {
	s.mu.Lock()
	_, live := s.tasks[t.id]
	s.mu.Unlock()
	if !live {
		// Canceled and cleared while the outcome was in flight.
		return
	}

	done := sync.OnceFunc(func() {
		if s.claim(t) {
			s.promoteOnePending()
		}
	})
	s.delegate.DidCompleteDownload(t.object, t.resp, t.body, err, done)
}

// claim removes t from the registry, returning false when another path —
// a canceler, or an earlier acknowledgment — already cleared it.
func (s *Session[T]) claim(t *task[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.id]; !ok {
		return false
	}
	delete(s.tasks, t.id)
	return true
}

// promoteOnePending moves at most one queued object into admission, then
// signals batch completion if the session has drained.
func (s *Session[T]) promoteOnePending() {
	s.mu.Lock()
	if s.closed || len(s.pending) == 0 || len(s.tasks) >= s.opts.MaxConcurrentDownloads {
		fire := s.drainedLocked()
		s.mu.Unlock()
		if fire {
			s.delegate.DidFinishBatch()
		}
		return
	}
	obj := s.pending[len(s.pending)-1]
	s.pending = s.pending[:len(s.pending)-1]
	s.admitting++
	s.mu.Unlock()

	s.admit(obj)

	s.mu.Lock()
	s.admitting--
	fire := s.drainedLocked()
	s.mu.Unlock()
	if fire {
		s.delegate.DidFinishBatch()
	}
}

// drainedLocked reports whether the batch has just drained to empty. The
// caller holds s.mu and must invoke DidFinishBatch after unlocking when
// true. The tracked set is cleared here so the signal fires once per
// drain, not once per completed transfer.
func (s *Session[T]) drainedLocked() bool {
	if s.admitting != 0 || len(s.tasks) != 0 || len(s.pending) != 0 || len(s.tracked) == 0 {
		return false
	}
	clear(s.tracked)
	return true
}

// applyRateLimit handles a 429: record the host's cooldown and cancel its
// other in-flight transfers. A 429 without a positive whole-seconds
// Retry-After header is just another unexpected response; no cooldown.
func (s *Session[T]) applyRateLimit(resp *http.Response) {
	retryAfter := retryAfterDuration(resp)
	if retryAfter <= 0 {
		return
	}
	if resp.Request == nil || resp.Request.URL == nil {
		return
	}
	host := resp.Request.URL.Hostname()
	if host == "" {
		return
	}

	s.log.Info("host rate limited", "host", host, "retryAfter", retryAfter)
	s.rateLimits.RecordTooManyRequests(host, retryAfter)
	s.cancelHostTasks(host)
}

// cancelHostTasks cancels every in-flight transfer targeting host, matched
// by exact hostname, case-insensitively. Queued objects carry no request
// yet; they are filtered by the rate-limit check when their turn comes.
func (s *Session[T]) cancelHostTasks(host string) {
	var canceled []*task[T]
	s.mu.Lock()
	for id, t := range s.tasks {
		if t.req.URL != nil && strings.EqualFold(t.req.URL.Hostname(), host) {
			t.canceled.Store(true)
			delete(s.tasks, id)
			canceled = append(canceled, t)
		}
	}
	s.mu.Unlock()

	for _, t := range canceled {
		t.cancel()
		s.promoteOnePending()
	}
}

// checkRedirect records permanent redirects before the client follows
// them. Other redirect classes are followed without being remembered.
func (s *Session[T]) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if resp := req.Response; resp != nil {
		if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusPermanentRedirect {
			s.redirects.Record(via[len(via)-1].URL.String(), req.URL.String())
		}
	}
	return nil
}

// abort marks t canceled and tears down its transfer.
func (t *task[T]) abort() {
	t.canceled.Store(true)
	t.cancel()
}

// statusOK reports whether code falls in the success or redirect range.
func statusOK(code int) bool {
	return code >= 200 && code <= 399
}

// retryAfterDuration extracts a whole-seconds Retry-After value from resp.
// Returns zero when the header is absent, unparseable, or non-positive.
func retryAfterDuration(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
