package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/enclosure"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
)

func main() {
	// Command line flags
	var (
		urlsFlag     = flag.String("url", "", "Enclosure URL(s) to download (comma-separated or newline-separated)")
		showFlag     = flag.String("show", "", "Show name for tags and file paths (defaults to each URL's host)")
		artworkFlag  = flag.String("artwork", "", "Artwork URL to embed in the episode tags")
		outputFlag   = flag.String("output", "", "Output directory (overrides config)")
		playlistFlag = flag.Bool("playlist", false, "Create playlist file")
		configFlag   = flag.String("config", "", "Path to config file")
		verboseFlag  = flag.Bool("verbose", false, "Show verbose output")
		dryRunFlag   = flag.Bool("dry-run", false, "Compute episode paths without downloading")
	)

	flag.Parse()

	// CLI mode - require URL
	if *urlsFlag == "" && flag.NArg() == 0 {
		fmt.Println("NetNewsWire Podcast Downloader - Download podcast episodes")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  nnw-podcast -url <URL> [options]")
		fmt.Println("  nnw-podcast <URL> [<URL>...] [options]")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load config
	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Apply flags
	if *outputFlag != "" {
		settings.EpisodeDownloadsPath = *outputFlag + "/{show}"
	}
	if *playlistFlag {
		settings.CreatePlaylist = true
	}
	if *artworkFlag != "" {
		settings.SaveArtworkInTags = true
	}

	// Get URLs
	input := *urlsFlag
	if flag.NArg() > 0 {
		input += "\n" + strings.Join(flag.Args(), "\n")
	}
	urls := parseInputURLs(input)
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "No valid http(s) URLs given")
		os.Exit(1)
	}

	epCfg := settings.ToEpisodeConfig()
	episodes := make([]*model.Episode, 0, len(urls))
	for i, enclosureURL := range urls {
		episodes = append(episodes, buildEpisode(enclosureURL, i+1, *showFlag, *artworkFlag, epCfg))
	}

	if *dryRunFlag {
		for _, ep := range episodes {
			fmt.Println("  " + ep.Path)
		}
		fmt.Println("\n[Dry run - not downloading]")
		return
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		cancel()
	}()

	log := logr.Discard()
	if *verboseFlag {
		log = funcr.New(func(prefix, args string) {
			fmt.Fprintln(os.Stderr, prefix, args)
		}, funcr.Options{Verbosity: 1})
	}

	printer := func(event progress.Event) {
		if event.Level == progress.LevelVerbose && !*verboseFlag {
			return
		}

		prefix := ""
		switch event.Level {
		case progress.LevelError:
			prefix = "❌ "
		case progress.LevelWarning:
			prefix = "⚠️  "
		case progress.LevelSuccess:
			prefix = "✅ "
		case progress.LevelInfo:
			prefix = "ℹ️  "
		default:
			prefix = "   "
		}

		fmt.Println(prefix + event.Message)
	}

	fmt.Println("🎙 NetNewsWire Podcast Downloader")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	downloader := enclosure.NewDownloader(settings, log, printer)
	defer downloader.Close()

	stats, err := downloader.Download(ctx, episodes)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nDownload cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error during download: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✨ Complete! Downloaded %d/%d episodes (%.2f MB)\n", stats.Downloaded, stats.Requested, float64(stats.Bytes)/1024/1024)
	if stats.Skipped > 0 {
		fmt.Printf("   %d skipped (over the size cap)\n", stats.Skipped)
	}
	if stats.Failed > 0 {
		fmt.Printf("   %d failed\n", stats.Failed)
	}
}

// buildEpisode derives an episode from a bare enclosure URL: the title
// comes from the URL's file name, the show from -show or the URL's host.
func buildEpisode(enclosureURL string, number int, show, artworkURL string, cfg *model.EpisodeConfig) *model.Episode {
	title := fmt.Sprintf("Episode %d", number)
	host := ""
	if u, err := url.Parse(enclosureURL); err == nil {
		host = u.Hostname()
		base := path.Base(u.Path)
		if base != "" && base != "/" && base != "." {
			if unescaped, uerr := url.PathUnescape(base); uerr == nil {
				base = unescaped
			}
			if name := strings.TrimSuffix(base, path.Ext(base)); name != "" {
				title = name
			}
		}
	}
	if show == "" {
		show = host
		if show == "" {
			show = "Podcasts"
		}
	}
	return model.NewEpisode(show, title, number, 0, enclosureURL, artworkURL, time.Time{}, cfg)
}

func parseInputURLs(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == '\n' || r == ','
	})
	var urls []string
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field != "" && (strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://")) {
			urls = append(urls, field)
		}
	}
	return urls
}
