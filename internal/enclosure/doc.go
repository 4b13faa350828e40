// Package enclosure downloads podcast episode files in batches.
//
// A Downloader submits every episode's enclosure URL to one download
// session and waits for the batch to drain. Each completed body is
// written to the episode's computed path through a uniquely named temp
// file and a rename, so readers never observe a partial file. Episodes
// then get their ID3 tags written, optionally with embedded show
// artwork, and each show with at least one completed episode can get an
// M3U or PLS playlist.
//
//	downloader := enclosure.NewDownloader(settings, log, onProgress)
//	defer downloader.Close()
//
//	stats, err := downloader.Download(ctx, episodes)
//
// # Artwork
//
// When artwork embedding is enabled, the Downloader first fetches every
// distinct artwork URL through a short-lived session, scales the images
// to the configured size, and holds them in memory for the tagging step.
// Episodes sharing an artwork URL share one fetch.
//
// # Size cap
//
// Transfers whose body grows past the configured maximum are abandoned
// mid-stream and counted as skipped; nothing is written for them.
package enclosure
