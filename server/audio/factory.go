package audio

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/shi-gg/opusfeed/internal/youtube"
)

// videoIDRE matches a bare 11-character YouTube video id, with no
// surrounding URL, per the id format Innertube responses use.
var videoIDRE = regexp.MustCompile(`^[\w-]{11}$`)

type DefaultFactory struct {
	youtubeResolver *youtube.Resolver
	logger          *slog.Logger
}

func NewDefaultFactory() *DefaultFactory {
	return NewDefaultFactoryWithLogger(nil)
}

// NewDefaultFactoryWithLogger builds a factory whose YouTube dispatch uses
// logger for the resolver and the underlying WebM decoder; a nil logger
// falls back to slog.Default.
func NewDefaultFactoryWithLogger(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		youtubeResolver: youtube.NewResolver(nil, logger),
		logger:          logger,
	}
}

func (f *DefaultFactory) CreateFromURL(ctx context.Context, rawURL string, startTimeMs int64) (Source, error) {
	if id, ok := youTubeVideoID(rawURL); ok {
		return NewYouTubeSource(ctx, f.youtubeResolver, id, startTimeMs, f.logger)
	}
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return NewMP3Source(ctx, rawURL, startTimeMs)
	}
	return nil, fmt.Errorf("unsupported URL scheme: %s", rawURL)
}

// youTubeVideoID recognizes a bare video id, a youtube.com/watch?v=...
// or youtube.com/shorts/... URL, a youtu.be/... short link, or a
// music.youtube.com link, and extracts the video id from whichever form
// matched.
func youTubeVideoID(raw string) (string, bool) {
	if videoIDRE.MatchString(raw) {
		return raw, true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	switch host {
	case "youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return id, true
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			return strings.TrimPrefix(u.Path, "/shorts/"), true
		}
		return "", false
	case "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		if id == "" {
			return "", false
		}
		return id, true
	default:
		return "", false
	}
}
