package refresh

import (
	"os"
	"strings"

	"github.com/VonLuderitz/NetNewsWire/internal/model"
)

// LoadFeedList reads a feed-list file and returns the feeds it names.
//
// See ParseFeedList for the file format.
func LoadFeedList(path string, cfg *model.ArchiveConfig) ([]*model.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFeedList(string(data), cfg), nil
}

// ParseFeedList parses a feed list: one feed URL per line, optionally
// followed by a display title. Blank lines and lines starting with '#'
// are skipped, as are lines that do not start with http:// or https://.
//
// Example:
//
//	# news
//	https://example.com/feed.xml        Example Blog
//	https://daringfireball.net/feeds/main
func ParseFeedList(input string, cfg *model.ArchiveConfig) []*model.Feed {
	lines := strings.Split(input, "\n")
	var feeds []*model.Feed
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
			continue
		}
		fields := strings.Fields(line)
		url := fields[0]
		title := strings.Join(fields[1:], " ")
		feeds = append(feeds, model.NewFeed(url, title, "", cfg))
	}
	return feeds
}
