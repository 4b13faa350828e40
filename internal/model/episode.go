package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Episode represents a single podcast episode with a downloadable
// enclosure.
//
// Episode contains the metadata needed to download and organize one
// audio file:
//   - Show and episode title for ID3 tagging and file naming
//   - EnclosureURL to download the audio from
//   - ArtworkURL for episode or show art
//   - Duration for playlist generation
//   - Computed local file path
//
// The file path is computed when creating an episode via NewEpisode, using
// the EpisodeConfig templates.
//
// Example:
//
//	cfg := &EpisodeConfig{
//	    DownloadsPath:  "/podcasts/{show}",
//	    FileNameFormat: "{epnum} {title}.mp3",
//	}
//	ep := NewEpisode("My Show", "Pilot", 1, 1800, mp3URL, artURL, pubDate, cfg)
//	// ep.Path = "/podcasts/My Show/01 Pilot.mp3"
type Episode struct {
	// Show is the podcast's title.
	Show string

	// Title is the episode title.
	Title string

	// Number is the episode number (1-indexed). Zero when unknown.
	Number int

	// Duration is the episode length in seconds. Zero when unknown.
	Duration float64

	// EnclosureURL is the URL to download the audio file from.
	EnclosureURL string

	// ArtworkURL is the URL of the episode or show artwork.
	// Empty string means no artwork is available.
	ArtworkURL string

	// PublishDate is when the episode was published.
	PublishDate time.Time

	// Path is the computed local file path the audio is saved to.
	Path string
}

// EpisodeConfig holds path formatting settings for episodes.
//
// Both templates support placeholders replaced per episode:
//   - {show} - Podcast title
//   - {title} - Episode title
//   - {epnum} - Episode number (2 digits, zero-padded)
//   - {year}, {month}, {day} - Publish date components
type EpisodeConfig struct {
	// DownloadsPath is the base path template episodes are saved under.
	// Example: "/podcasts/{show}"
	DownloadsPath string

	// FileNameFormat is the template for episode filenames.
	// Must include the file extension (typically ".mp3").
	FileNameFormat string

	// PlaylistFileNameFormat is the filename template for playlists
	// (without extension). Example: "{show}"
	PlaylistFileNameFormat string

	// PlaylistFormat determines the playlist file type and extension.
	PlaylistFormat PlaylistFormat
}

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// PlaylistFormatM3U creates .m3u playlist files (most widely supported).
	PlaylistFormatM3U PlaylistFormat = iota

	// PlaylistFormatPLS creates .pls playlist files (used by Winamp).
	PlaylistFormatPLS
)

// Extension returns the file extension for the playlist format, including
// the dot.
func (pf PlaylistFormat) Extension() string {
	switch pf {
	case PlaylistFormatPLS:
		return ".pls"
	default:
		return ".m3u"
	}
}

// NewEpisode creates a new Episode with computed path.
//
// The directory comes from cfg.DownloadsPath, the filename from
// cfg.FileNameFormat. Invalid filename characters are replaced with
// underscores, and the total path is clamped to Windows path limits.
func NewEpisode(show, title string, number int, duration float64, enclosureURL, artworkURL string, publishDate time.Time, cfg *EpisodeConfig) *Episode {
	ep := &Episode{
		Show:         show,
		Title:        title,
		Number:       number,
		Duration:     duration,
		EnclosureURL: enclosureURL,
		ArtworkURL:   artworkURL,
		PublishDate:  publishDate,
	}
	ep.Path = ep.parseFilePath(cfg)
	return ep
}

// HasArtwork returns true if the episode has artwork available for
// download.
func (e *Episode) HasArtwork() bool {
	return e.ArtworkURL != ""
}

// Dir returns the directory portion of the episode's computed path.
func (e *Episode) Dir() string {
	return filepath.Dir(e.Path)
}

// PlaylistPath computes the playlist file path for a show using cfg's
// playlist settings. Episodes of one show share a playlist in the show's
// download directory.
func PlaylistPath(show string, cfg *EpisodeConfig) string {
	dir := expandShowPath(cfg.DownloadsPath, show)
	name := strings.ReplaceAll(cfg.PlaylistFileNameFormat, "{show}", show)
	return filepath.Join(dir, sanitizeFileName(name)+cfg.PlaylistFormat.Extension())
}

// parseFilePath computes the full file path for this episode.
func (e *Episode) parseFilePath(cfg *EpisodeConfig) string {
	dir := expandShowPath(cfg.DownloadsPath, e.Show)
	fileName := e.parseFileName(cfg)
	filePath := filepath.Join(dir, fileName)

	// Limit total path length for Windows compatibility (MAX_PATH = 260)
	if len(filePath) >= 260 {
		ext := filepath.Ext(filePath)
		maxLen := 259 - len(dir) - len(ext) - 1
		if maxLen > 0 && maxLen < len(fileName) {
			filePath = filepath.Join(dir, fileName[:maxLen]+ext)
		}
	}

	return filePath
}

// parseFileName computes the filename from the config template.
func (e *Episode) parseFileName(cfg *EpisodeConfig) string {
	fileName := cfg.FileNameFormat
	fileName = strings.ReplaceAll(fileName, "{year}", e.PublishDate.Format("2006"))
	fileName = strings.ReplaceAll(fileName, "{month}", e.PublishDate.Format("01"))
	fileName = strings.ReplaceAll(fileName, "{day}", e.PublishDate.Format("02"))
	fileName = strings.ReplaceAll(fileName, "{show}", e.Show)
	fileName = strings.ReplaceAll(fileName, "{title}", e.Title)
	fileName = strings.ReplaceAll(fileName, "{epnum}", fmt.Sprintf("%02d", e.Number))
	return sanitizeFileName(fileName)
}

// expandShowPath substitutes the show name into a downloads-path template.
func expandShowPath(template, show string) string {
	return strings.ReplaceAll(template, "{show}", sanitizeFileName(show))
}
