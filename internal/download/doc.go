// Package download implements the concurrent fetch engine shared by the
// feed, icon, and enclosure frontends.
//
// # Session
//
// A Session manages a large set of HTTP transfers against a global
// concurrency budget. Callers hand it batches of "represented objects" —
// opaque comparable values standing in for the resource to fetch — and a
// Delegate that builds the requests and consumes the results:
//
//  1. Download deduplicates the batch against objects already tracked
//  2. Each new object is dispatched, or queued once the budget is spent
//  3. Responses are classified: 304, unexpected status, 429, or success
//  4. Successful bodies stream back chunk by chunk
//  5. When nothing is left in flight or queued, the batch is complete
//
// # Basic Usage
//
//	session := download.NewSession[*Feed](download.Options{
//	    UserAgent: "FeedFetcher",
//	}, delegate)
//	defer session.Close()
//
//	session.Download(feeds...)
//
// The call returns immediately; outcomes arrive through the delegate. A
// batch is done when the delegate's DidFinishBatch fires.
//
// # Concurrency
//
// Two limits apply. MaxConcurrentDownloads caps transfers dispatched at
// once across all hosts (default 500); the overflow waits in a queue that
// is serviced newest-first as slots free up. MaxConnectionsPerHost caps
// parallel connections to any single origin at the transport (default 1),
// which keeps even a saturated session polite toward individual servers.
//
// # Rate Limiting
//
// A 429 response carrying a whole-seconds Retry-After header puts the
// host into a cooldown window: its other in-flight transfers are canceled
// at once, and new submissions for it are silently dropped until the
// window passes. Dropped is deferred, not failed — resubmit in a later
// batch.
//
// # Redirect Caching
//
// Permanent redirects (301, 308) are remembered for the session lifetime,
// so repeat fetches of a moved URL skip the extra round trip. Redirects
// whose target looks like an auth wall (see DefaultRedirectBlacklist) are
// followed but never cached.
package download
