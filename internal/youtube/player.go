package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	playerURLRE     = regexp.MustCompile(`"(?:PLAYER_JS_URL|jsUrl)"\s*:\s*"([^"]+)"`)
	ytInitialDataRE = regexp.MustCompile(`(?s)ytInitialData\s*=\s*(\{.+?\})\s*;\s*(?:var\s+meta|</script|\n)`)
	ytPlayerRespRE  = regexp.MustCompile(`(?s)ytInitialPlayerResponse\s*=\s*(\{.+?\})\s*;\s*(?:var\s+meta|</script|\n)`)
)

// GetVideo fetches the watch page for id and extracts the embedded
// ytInitialPlayerResponse and ytInitialData JSON blobs, building a
// VideoData that can also resolve a playback URL via ResolveMediaURL.
// Resolver failures are always returned as an error rather than a panic;
// callers treat a non-nil error as "not ready".
func (r *Resolver) GetVideo(ctx context.Context, id string) (*VideoData, error) {
	page, err := r.fetchText(ctx, YouTubeHost+fmt.Sprintf("/watch?v=%s&hl=en", url.QueryEscape(id)), "")
	if err != nil {
		return nil, fmt.Errorf("youtube: fetching watch page: %w", err)
	}
	return parseWatchPage(page, id)
}

// parseWatchPage extracts ytInitialPlayerResponse and ytInitialData from a
// fetched watch page body, split out from GetVideo so tests can exercise it
// against a fixture page without a live endpoint.
func parseWatchPage(page, id string) (*VideoData, error) {
	playerURL, err := resolvePlayerURL(page)
	if err != nil {
		return nil, err
	}

	var playerResp playerResponseJSON
	if err := extractJSON(ytPlayerRespRE, page, &playerResp); err != nil {
		return nil, fmt.Errorf("youtube: parsing ytInitialPlayerResponse: %w", err)
	}
	if playerResp.VideoDetails == nil {
		return nil, ErrNotFound
	}

	var initialData ytInitialDataJSON
	_ = extractJSON(ytInitialDataRE, page, &initialData) // owner-badge lookup is best-effort

	fromArtist := false
	if w := initialData.Contents.TwoColumnWatchNextResults; w != nil {
		for _, c := range w.Results.Results.Contents {
			if c.VideoSecondaryInfoRenderer == nil {
				continue
			}
			if hasOfficialArtistBadge(c.VideoSecondaryInfoRenderer.Owner.VideoOwnerRenderer.Badges) {
				fromArtist = true
				break
			}
		}
	}

	details := playerResp.VideoDetails
	duration, _ := strconv.ParseFloat(details.LengthSeconds, 64)
	views, _ := strconv.ParseInt(details.ViewCount, 10, 64)

	return &VideoData{
		ID:         id,
		Author:     details.Author,
		Title:      details.Title,
		Duration:   duration,
		Views:      views,
		FromArtist: fromArtist,
		playerURL:  playerURL,
		streaming:  playerResp.StreamingData,
	}, nil
}

// resolvePlayerURL normalizes the three forms the PLAYER_JS_URL/jsUrl
// capture can take: absolute, protocol-relative ("//host/..."), and
// root-relative ("/s/player/...").
func resolvePlayerURL(page string) (string, error) {
	m := playerURLRE.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("youtube: player script url not found in watch page")
	}
	raw := m[1]
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw, nil
	case strings.HasPrefix(raw, "/"):
		return YouTubeHost + raw, nil
	default:
		return raw, nil
	}
}

// extractJSON runs re against page, taking the first capture group as a
// JSON document and unmarshaling it into out.
func extractJSON(re *regexp.Regexp, page string, out any) error {
	m := re.FindStringSubmatch(page)
	if m == nil {
		return fmt.Errorf("youtube: pattern not found")
	}
	return json.Unmarshal([]byte(m[1]), out)
}

// fetchText issues a GET (or, with a non-empty body, a POST) to rawURL
// with the resolver's default headers and returns the response body as
// text.
func (r *Resolver) fetchText(ctx context.Context, rawURL string, body string) (string, error) {
	method := http.MethodGet
	var reqBody io.Reader
	if body != "" {
		method = http.MethodPost
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return "", fmt.Errorf("youtube: building request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("youtube: unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("youtube: reading response: %w", err)
	}
	return string(data), nil
}
