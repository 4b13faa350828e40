// Package icon fetches site icons for feeds.
//
// The Fetcher derives one favicon URL per host from a feed list,
// downloads the icons through its own download session, scales each to a
// square PNG thumbnail, and writes it under the icons dir named after
// the host:
//
//	f := icon.NewFetcher(settings, logr.Discard(), nil)
//	defer f.Close()
//	stats, err := f.Fetch(ctx, feeds)
//
// Hosts that answer with an HTML page instead of an image — the usual
// shape of a missing favicon — are detected by sniffing the first body
// chunk, and the transfer is abandoned without downloading the rest.
// ICO payloads the image decoder cannot parse are saved verbatim.
package icon
