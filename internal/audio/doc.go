// Package audio provides audio file manipulation services including
// ID3 tag writing and playlist generation for downloaded episodes.
//
// # ID3 Tagging
//
// Use the Tagger to write ID3 tags to episode files:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.SaveTags(episode, artworkBytes)
//
// The tagger supports:
//   - Artist, Album Artist, Album (all set from the show title)
//   - Episode Title, Episode Number, Year
//   - Genre ("Podcast")
//   - Cover Art (embedded in the file)
//
// # Playlist Generation
//
// Generate playlists for a show's downloaded episodes:
//
//	creator := audio.NewPlaylistCreator(model.PlaylistFormatM3U, true) // extended M3U
//	content := creator.CreatePlaylist(show, episodes)
//	os.WriteFile(playlistPath, []byte(content), 0644)
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
package audio
