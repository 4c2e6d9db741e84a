package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type searchRequestBody struct {
	Context searchContext `json:"context"`
	Query   string        `json:"query"`
}

type searchContext struct {
	Client searchClient `json:"client"`
}

type searchClient struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
}

// Search runs query against the Innertube search endpoint and returns one
// VideoData per video result. Search results carry no streamingData, so
// CanResolveMedia is always false on the returned VideoData; resolve
// playback via GetVideo instead.
func (r *Resolver) Search(ctx context.Context, query string) ([]*VideoData, error) {
	body := searchRequestBody{
		Context: searchContext{Client: searchClient{ClientName: "WEB", ClientVersion: innertubeClientVersion}},
		Query:   query,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("youtube: encoding search body: %w", err)
	}

	raw, err := r.fetchText(ctx, YouTubeHost+"/youtubei/v1/search?key="+searchKey, string(payload))
	if err != nil {
		return nil, fmt.Errorf("youtube: search request: %w", err)
	}
	return parseSearchResponse(raw)
}

// parseSearchResponse walks an Innertube search response into one VideoData
// per videoRenderer, split out from Search so tests can exercise it against
// a fixture body without a live endpoint.
func parseSearchResponse(raw string) ([]*VideoData, error) {
	var resp ytInitialDataJSON
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("youtube: parsing search response: %w", err)
	}
	renderer := resp.Contents.TwoColumnSearchResultsRenderer
	if renderer == nil {
		return nil, ErrNotFound
	}

	var out []*VideoData
	for _, section := range renderer.PrimaryContents.SectionListRenderer.Contents {
		for _, item := range section.ItemSectionRenderer.Contents {
			vr := item.VideoRenderer
			if vr == nil {
				continue
			}
			out = append(out, &VideoData{
				ID:         vr.VideoID,
				Author:     vr.OwnerText.text(),
				Title:      vr.Title.text(),
				Duration:   parseDurationText(vr.LengthText.text()),
				Views:      parseViewCount(vr.ViewCountText.text()),
				FromArtist: hasOfficialArtistBadge(vr.OwnerBadges),
			})
		}
	}
	return out, nil
}

// parseDurationText converts "H:MM:SS" / "M:SS" / "S" into seconds by
// reversed-splitting on ":" and summing with ascending powers of 60.
func parseDurationText(text string) float64 {
	parts := strings.Split(text, ":")
	var total float64
	scale := 1.0
	for i := len(parts) - 1; i >= 0; i-- {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			continue
		}
		total += v * scale
		scale *= 60
	}
	return total
}

// parseViewCount extracts the leading run of digits from strings like
// "1,234,567 views", mirroring the leniency of the original's
// String::to_int64 (parses what it can, ignores the rest).
func parseViewCount(text string) int64 {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if r == ',' {
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	v, _ := strconv.ParseInt(digits.String(), 10, 64)
	return v
}
