package model

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// Feed represents one subscription whose content gets fetched and archived.
//
// Feed carries everything the refresh frontends need:
//   - URL to fetch on refresh
//   - Title and HomePageURL for naming and icon discovery
//   - The computed local path the fetched body is archived to
//
// The archive path is computed when creating a feed via NewFeed, using
// placeholders like {host}, {title} and {hash}.
//
// Example:
//
//	cfg := &ArchiveConfig{
//	    ArchiveDir:     "/feeds",
//	    FileNameFormat: "{host}/{title} {hash}.xml",
//	}
//	feed := NewFeed("https://example.com/rss", "Example Blog", "https://example.com", cfg)
//	// feed.ArchivePath = "/feeds/example.com/Example Blog 4c2f7a31.xml"
type Feed struct {
	// URL is the feed's own address, fetched on refresh.
	URL string

	// Title is the feed's display name. Falls back to the host when empty.
	Title string

	// HomePageURL is the site the feed belongs to. Used to locate the
	// site icon. Empty when unknown.
	HomePageURL string

	// ArchivePath is the computed local file the fetched body lands in.
	// Set by NewFeed from ArchiveConfig.
	ArchivePath string
}

// ArchiveConfig holds path formatting settings for feed archives.
//
// FileNameFormat supports placeholders replaced per feed:
//   - {host} - the feed URL's hostname
//   - {title} - the feed title (host when empty)
//   - {hash} - a short stable digest of the feed URL, keeping files
//     distinct when titles collide
type ArchiveConfig struct {
	// ArchiveDir is the base directory archives are stored under.
	ArchiveDir string

	// FileNameFormat is the path template relative to ArchiveDir.
	// May contain separators to group archives into subdirectories.
	FileNameFormat string
}

// NewFeed creates a Feed with its archive path computed from cfg.
//
// Invalid filename characters in the title are replaced with underscores,
// and the resulting path is clamped to Windows path-length limits.
func NewFeed(feedURL, title, homePageURL string, cfg *ArchiveConfig) *Feed {
	feed := &Feed{
		URL:         feedURL,
		Title:       title,
		HomePageURL: homePageURL,
	}
	feed.ArchivePath = feed.parseArchivePath(cfg)
	return feed
}

// Host returns the hostname of the feed URL, or "feed" when the URL does
// not parse.
func (f *Feed) Host() string {
	u, err := url.Parse(f.URL)
	if err != nil || u.Hostname() == "" {
		return "feed"
	}
	return u.Hostname()
}

// DisplayTitle returns the title, falling back to the host for untitled
// feeds.
func (f *Feed) DisplayTitle() string {
	if f.Title != "" {
		return f.Title
	}
	return f.Host()
}

// parseArchivePath computes the archive file path from the config template.
func (f *Feed) parseArchivePath(cfg *ArchiveConfig) string {
	name := cfg.FileNameFormat
	name = strings.ReplaceAll(name, "{host}", sanitizeFileName(f.Host()))
	name = strings.ReplaceAll(name, "{title}", sanitizeFileName(f.DisplayTitle()))
	name = strings.ReplaceAll(name, "{hash}", shortHash(f.URL))

	path := filepath.Join(cfg.ArchiveDir, filepath.FromSlash(name))

	// Limit total path length for Windows compatibility (MAX_PATH = 260)
	if len(path) >= 260 {
		ext := filepath.Ext(path)
		dir := filepath.Dir(path)
		base := strings.TrimSuffix(filepath.Base(path), ext)
		maxLen := 259 - len(dir) - len(ext) - 1
		if maxLen > 0 && maxLen < len(base) {
			path = filepath.Join(dir, base[:maxLen]+ext)
		}
	}

	return path
}

// shortHash returns a short stable hex digest of s for use in filenames.
func shortHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// sanitizeFileName removes or replaces characters that are invalid in
// file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Trailing whitespace is removed
//
// Example:
//
//	sanitizeFileName("Feed: Part 1/2") // Returns "Feed_ Part 1_2"
func sanitizeFileName(name string) string {
	// Replace invalid path/file characters
	invalidChars := regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	name = invalidChars.ReplaceAllString(name, "_")

	// Remove trailing dots
	name = regexp.MustCompile(`\.+$`).ReplaceAllString(name, "")

	// Replace multiple whitespace with single space
	name = regexp.MustCompile(`\s+`).ReplaceAllString(name, " ")

	// Remove trailing whitespace
	name = strings.TrimRight(name, " ")

	return name
}
