// Package config provides configuration management for the feed engine.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//   - Conversion to ArchiveConfig and EpisodeConfig for other packages
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Archives feeds to ~/NetNewsWire/Feeds/{host}/
//	// 500 concurrent downloads, one connection per host
//	// Conditional GETs via ~/NetNewsWire/cache.db
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.json")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Saving Settings
//
//	settings.ArchiveDir = "/srv/feeds"
//	err := settings.Save("/path/to/config.json")
//
// # Configuration Options
//
// Settings includes options for:
//   - Download concurrency and per-host connection limits
//   - Archive paths and file naming
//   - Conditional-GET cache location
//   - Feed icon fetching
//   - Enclosure downloads, ID3 tagging and artwork
//   - Playlist generation
package config
