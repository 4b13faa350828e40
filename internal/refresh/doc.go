// Package refresh fetches feed collections through a download session
// and archives each feed body verbatim.
//
// # Refresher
//
// A Refresher is a download.Delegate over feeds. On the way out it turns
// each feed into a conditional GET (If-None-Match / If-Modified-Since
// from the httpcache store); on the way back it writes the body
// atomically to the feed's archive path and stores fresh validators.
// Servers that still hold the same content answer 304 and only the cache
// timestamp moves.
//
//	store, _ := httpcache.Open(settings.CacheDBPath)
//	r := refresh.NewRefresher(settings, store, logr.Discard(), printEvent)
//	defer r.Close()
//
//	feeds, err := refresh.LoadFeedList("feeds.txt", settings.ToArchiveConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	stats, err := r.Refresh(ctx, feeds)
//
// Refresh blocks until every submitted feed has been accounted for —
// archived, unchanged, failed, discarded as a duplicate, or dropped —
// and returns the pass's Stats.
//
// # Pacing
//
// Large feed lists are submitted in chunks paced by a rate limiter
// (settings.SubmitChunkSize / settings.SubmitChunksPerSecond), keeping
// submission bursts polite without touching the session's own
// concurrency budget.
//
// # Collections
//
// RefreshAll refreshes several named collections concurrently, one
// Refresher (and one download session) per collection, bounded by
// settings.MaxConcurrentCollections.
package refresh
