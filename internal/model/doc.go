// Package model defines the core data structures shared by the refresh,
// icon, and enclosure frontends.
//
// # Feed
//
// Feed represents a subscription with its computed archive location:
//
//	feed := model.NewFeed(feedURL, "Example Blog", homePageURL, archiveConfig)
//	fmt.Println(feed.ArchivePath) // Where the fetched body is archived
//
// # Episode
//
// Episode represents a podcast episode with a downloadable enclosure:
//
//	ep := model.NewEpisode("My Show", "Pilot", 1, 1800, mp3URL, artURL, pubDate, episodeConfig)
//	fmt.Println(ep.Path) // Full path where the audio will be saved
//
// # Path Configuration
//
// ArchiveConfig and EpisodeConfig control how paths are computed using
// placeholders:
//
//	cfg := &model.EpisodeConfig{
//	    DownloadsPath:          "/podcasts/{show}",
//	    FileNameFormat:         "{epnum} {title}.mp3",
//	    PlaylistFileNameFormat: "{show}",
//	    PlaylistFormat:         model.PlaylistFormatM3U,
//	}
//
// Feed placeholders: {host}, {title}, {hash}. Episode placeholders:
// {show}, {title}, {epnum}, {year}, {month}, {day}.
package model
