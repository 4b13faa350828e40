// Package httpcache persists HTTP cache validators for feed URLs.
//
// A Store remembers the ETag and Last-Modified headers from each feed's
// last successful fetch in a SQLite database. Before the next fetch, the
// stored record turns the request into a conditional one:
//
//	store, err := httpcache.Open("~/.netnewswire/cache.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec, err := store.Lookup(feedURL)
//	if err != nil {
//		log.Fatal(err)
//	}
//	rec.ApplyConditionalHeaders(req) // nil rec is fine
//
// A server that still has the same content answers 304 Not Modified with
// no body. After a fetch, Save stores the fresh validators (on 200) or
// Touch bumps the fetch time while keeping them (on 304).
package httpcache
