package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/VonLuderitz/NetNewsWire/internal/model"
)

// Settings holds all configuration options.
type Settings struct {
	// Download engine settings
	MaxConcurrentDownloads int      `json:"max_concurrent_downloads"`
	MaxConnectionsPerHost  int      `json:"max_connections_per_host"`
	DownloadTimeoutSeconds int      `json:"download_timeout_seconds"`
	UserAgent              string   `json:"user_agent"`
	RedirectBlacklist      []string `json:"redirect_blacklist"`

	// Refresh settings
	ArchiveDir               string  `json:"archive_dir"`
	ArchiveFileNameFormat    string  `json:"archive_file_name_format"`
	CacheDBPath              string  `json:"cache_db_path"`
	MaxConcurrentCollections int     `json:"max_concurrent_collections"`
	SubmitChunkSize          int     `json:"submit_chunk_size"`
	SubmitChunksPerSecond    float64 `json:"submit_chunks_per_second"`

	// Icon settings
	DownloadIcons bool   `json:"download_icons"`
	IconsDir      string `json:"icons_dir"`
	IconMaxSize   int    `json:"icon_max_size"`

	// Enclosure settings
	EpisodeDownloadsPath  string `json:"episode_downloads_path"`
	EpisodeFileNameFormat string `json:"episode_file_name_format"`
	MaxEnclosureBytes     int64  `json:"max_enclosure_bytes"`

	// Tag settings
	ModifyTags          bool `json:"modify_tags"`
	SaveArtworkInTags   bool `json:"save_artwork_in_tags"`
	ArtworkMaxSize      int  `json:"artwork_max_size"`
	ConvertArtworkToJPG bool `json:"convert_artwork_to_jpg"`

	// Playlist settings
	CreatePlaylist         bool   `json:"create_playlist"`
	PlaylistFormat         string `json:"playlist_format"` // m3u, pls
	PlaylistFileNameFormat string `json:"playlist_file_name_format"`
	M3UExtended            bool   `json:"m3u_extended"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		MaxConcurrentDownloads: 500,
		MaxConnectionsPerHost:  1,
		DownloadTimeoutSeconds: 60,
		UserAgent:              "NetNewsWire (RSS Reader; https://netnewswire.com/)",
		RedirectBlacklist:      []string{"login", "signin", "sign-in", "account"},

		ArchiveDir:               filepath.Join(homeDir, "NetNewsWire", "Feeds"),
		ArchiveFileNameFormat:    "{host}/{title} {hash}.xml",
		CacheDBPath:              filepath.Join(homeDir, "NetNewsWire", "cache.db"),
		MaxConcurrentCollections: 2,
		SubmitChunkSize:          25,
		SubmitChunksPerSecond:    1.0,

		DownloadIcons: false,
		IconsDir:      filepath.Join(homeDir, "NetNewsWire", "Icons"),
		IconMaxSize:   256,

		EpisodeDownloadsPath:  filepath.Join(homeDir, "NetNewsWire", "Podcasts", "{show}"),
		EpisodeFileNameFormat: "{epnum} {title}.mp3",
		MaxEnclosureBytes:     0, // unlimited

		ModifyTags:          true,
		SaveArtworkInTags:   true,
		ArtworkMaxSize:      1000,
		ConvertArtworkToJPG: true,

		CreatePlaylist:         false,
		PlaylistFormat:         "m3u",
		PlaylistFileNameFormat: "{show}",
		M3UExtended:            true,
	}
}

// Load reads settings from a JSON file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ToArchiveConfig converts settings to the feed archive path config.
func (s *Settings) ToArchiveConfig() *model.ArchiveConfig {
	return &model.ArchiveConfig{
		ArchiveDir:     s.ArchiveDir,
		FileNameFormat: s.ArchiveFileNameFormat,
	}
}

// ToEpisodeConfig converts settings to the episode path config.
func (s *Settings) ToEpisodeConfig() *model.EpisodeConfig {
	var pf model.PlaylistFormat
	switch s.PlaylistFormat {
	case "pls":
		pf = model.PlaylistFormatPLS
	default:
		pf = model.PlaylistFormatM3U
	}

	return &model.EpisodeConfig{
		DownloadsPath:          s.EpisodeDownloadsPath,
		FileNameFormat:         s.EpisodeFileNameFormat,
		PlaylistFileNameFormat: s.PlaylistFileNameFormat,
		PlaylistFormat:         pf,
	}
}
