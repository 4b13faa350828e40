package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/httpcache"
	"github.com/VonLuderitz/NetNewsWire/internal/icon"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
	"github.com/VonLuderitz/NetNewsWire/internal/refresh"
)

func main() {
	// Command line flags
	var (
		feedsFlag   = flag.String("feeds", "", "Path to a feed list file (one URL per line)")
		archiveFlag = flag.String("archive", "", "Archive directory (overrides config)")
		configFlag  = flag.String("config", "", "Path to config file")
		iconsFlag   = flag.Bool("icons", false, "Fetch feed icons after refreshing")
		verboseFlag = flag.Bool("verbose", false, "Show verbose output")
		dryRunFlag  = flag.Bool("dry-run", false, "Parse feed lists without fetching")
	)

	flag.Parse()

	// CLI mode - require at least one feed list
	if *feedsFlag == "" && flag.NArg() == 0 {
		fmt.Println("NetNewsWire Feed Fetcher - Refresh feeds and archive what changed")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  nnw-fetch -feeds <file> [options]")
		fmt.Println("  nnw-fetch <file> [<file>...] [options]")
		fmt.Println()
		fmt.Println("Each feed list becomes its own collection; collections refresh concurrently.")
		fmt.Println("For interactive mode, use: nnw-tui")
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
	if *archiveFlag != "" {
		settings.ArchiveDir = *archiveFlag
	}
	if *iconsFlag {
		settings.DownloadIcons = true
	}

	// Load feed lists, one collection per file
	var listPaths []string
	if *feedsFlag != "" {
		listPaths = append(listPaths, *feedsFlag)
	}
	listPaths = append(listPaths, flag.Args()...)

	var collections []refresh.Collection
	for _, path := range listPaths {
		feeds, err := refresh.LoadFeedList(path, settings.ToArchiveConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", path, err)
			os.Exit(1)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		collections = append(collections, refresh.Collection{Name: name, Feeds: feeds})
	}

	if *dryRunFlag {
		for _, col := range collections {
			fmt.Printf("Loaded %d feeds from %s:\n", len(col.Feeds), col.Name)
			for _, feed := range col.Feeds {
				fmt.Printf("  • %s\n", feed.DisplayTitle())
			}
		}
		fmt.Println("\n[Dry run - not fetching]")
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

	// Open the conditional-GET cache shared by every collection
	store, err := httpcache.Open(settings.CacheDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Println("📰 NetNewsWire Feed Fetcher")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	results := refresh.RefreshAll(ctx, collections, settings, store, log, printer)

	var agg refresh.Stats
	failed := false
	for _, res := range results {
		agg.Submitted += res.Stats.Submitted
		agg.Refreshed += res.Stats.Refreshed
		agg.Unchanged += res.Stats.Unchanged
		agg.Failed += res.Stats.Failed
		agg.Duplicates += res.Stats.Duplicates
		agg.Bytes += res.Stats.Bytes
		if res.Err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nRefresh cancelled.")
				os.Exit(130)
			}
			fmt.Fprintf(os.Stderr, "Error refreshing %s: %v\n", res.Name, res.Err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}

	var iconStats icon.Stats
	if settings.DownloadIcons {
		fmt.Println("\n🖼  Fetching feed icons...")
		fmt.Println()

		var feeds []*model.Feed
		for _, col := range collections {
			feeds = append(feeds, col.Feeds...)
		}

		fetcher := icon.NewFetcher(settings, log, printer)
		iconStats, err = fetcher.Fetch(ctx, feeds)
		fetcher.Close()
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nRefresh cancelled.")
				os.Exit(130)
			}
			fmt.Fprintf(os.Stderr, "Error fetching icons: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✨ Complete! Refreshed %d/%d feeds (%.2f MB)\n", agg.Refreshed, agg.Submitted, float64(agg.Bytes)/1024/1024)
	if agg.Unchanged > 0 {
		fmt.Printf("   %d unchanged since last fetch\n", agg.Unchanged)
	}
	if agg.Failed > 0 {
		fmt.Printf("   %d failed\n", agg.Failed)
	}
	if len(results) > 1 {
		for _, res := range results {
			fmt.Printf("   %s: %d refreshed, %d unchanged, %d failed\n", res.Name, res.Stats.Refreshed, res.Stats.Unchanged, res.Stats.Failed)
		}
	}
	if settings.DownloadIcons {
		fmt.Printf("   Icons: %d saved, %d failed\n", iconStats.Saved, iconStats.Failed)
	}
}
