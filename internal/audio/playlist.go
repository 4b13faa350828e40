package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/VonLuderitz/NetNewsWire/internal/model"
)

// PlaylistCreator generates playlist files for downloaded episodes.
//
// PlaylistCreator takes a show's episodes and generates a playlist
// listing their files. The output is a string that can be written to a
// file next to the episodes.
//
// Example:
//
//	// Create M3U playlist with extended info
//	creator := NewPlaylistCreator(model.PlaylistFormatM3U, true)
//	content := creator.CreatePlaylist("My Show", episodes)
//	os.WriteFile(playlistPath, []byte(content), 0644)
//
//	// Result:
//	// #EXTM3U
//	// #EXTINF:1800,My Show - Pilot
//	// 01 Pilot.mp3
type PlaylistCreator struct {
	format   model.PlaylistFormat
	extended bool // For M3U: include EXTINF lines with duration/title
}

// NewPlaylistCreator creates a new PlaylistCreator.
//
// Parameters:
//   - format: The playlist format to generate
//   - extended: For M3U format, whether to include #EXTINF lines
//     (ignored for PLS)
func NewPlaylistCreator(format model.PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{
		format:   format,
		extended: extended,
	}
}

// CreatePlaylist generates playlist content for a show's episodes.
//
// Returns the playlist as a string, ready to be written to a file.
// Episode paths in the playlist are relative (just the filename),
// assuming the playlist file is in the same directory as the episodes.
//
// Example:
//
//	content := creator.CreatePlaylist("My Show", episodes)
//	err := os.WriteFile("/podcasts/My Show/My Show.m3u", []byte(content), 0644)
func (p *PlaylistCreator) CreatePlaylist(show string, episodes []*model.Episode) string {
	switch p.format {
	case model.PlaylistFormatPLS:
		return p.createPLS(episodes)
	default:
		return p.createM3U(show, episodes)
	}
}

// createM3U generates an M3U playlist.
//
// Standard M3U format:
//
//	filename1.mp3
//	filename2.mp3
//
// Extended M3U format (when extended=true):
//
//	#EXTM3U
//	#EXTINF:1800,Show - Title
//	filename1.mp3
func (p *PlaylistCreator) createM3U(show string, episodes []*model.Episode) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}

	for _, ep := range episodes {
		if p.extended {
			duration := int(ep.Duration)
			sb.WriteString(fmt.Sprintf("#EXTINF:%d,%s - %s\n", duration, show, ep.Title))
		}
		sb.WriteString(filepath.Base(ep.Path) + "\n")
	}

	return sb.String()
}

// createPLS generates a PLS playlist.
//
// PLS format is an INI-style text file:
//
//	[playlist]
//	File1=filename1.mp3
//	Title1=Episode Title
//	Length1=1800
//	NumberOfEntries=2
//	Version=2
func (p *PlaylistCreator) createPLS(episodes []*model.Episode) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")

	for i, ep := range episodes {
		idx := i + 1
		sb.WriteString(fmt.Sprintf("File%d=%s\n", idx, filepath.Base(ep.Path)))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", idx, ep.Title))
		sb.WriteString(fmt.Sprintf("Length%d=%d\n", idx, int(ep.Duration)))
	}

	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(episodes)))
	sb.WriteString("Version=2\n")

	return sb.String()
}
