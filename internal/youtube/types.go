package youtube

import "errors"

var (
	// ErrNotFound is returned when a watch page or search response carries
	// no usable player/metadata JSON.
	ErrNotFound = errors.New("youtube: video data not found")
	// ErrNoAudioFormat is returned when streamingData carries no
	// audio/webm Opus adaptive format.
	ErrNoAudioFormat = errors.New("youtube: no opus audio/webm format available")
	// ErrDescrambleFailed is returned when the player script's signature
	// function could not be mined.
	ErrDescrambleFailed = errors.New("youtube: could not mine signature descrambler")
)

// VideoData describes one resolved or searched-for video.
type VideoData struct {
	ID         string
	Author     string
	Title      string
	Duration   float64 // seconds
	Views      int64
	FromArtist bool

	// playerURL and streaming carry enough of the player response to
	// resolve a playable media URL later via ResolveMediaURL. They are
	// unset on VideoData built from Search results (search responses
	// don't carry streamingData).
	playerURL string
	streaming *streamingData
}

// CanResolveMedia reports whether this VideoData carries enough of the
// player response (from GetVideo, not Search) to resolve a playback URL.
func (v *VideoData) CanResolveMedia() bool {
	return v.streaming != nil
}

// --- player response / watch page JSON shapes ---

type playerResponseJSON struct {
	VideoDetails  *videoDetailsJSON `json:"videoDetails"`
	StreamingData *streamingData    `json:"streamingData"`
}

type videoDetailsJSON struct {
	VideoID       string `json:"videoId"`
	Author        string `json:"author"`
	Title         string `json:"title"`
	LengthSeconds string `json:"lengthSeconds"`
	ViewCount     string `json:"viewCount"`
}

type streamingData struct {
	AdaptiveFormats []adaptiveFormat `json:"adaptiveFormats"`
}

type adaptiveFormat struct {
	MimeType        string `json:"mimeType"`
	Bitrate         int64  `json:"bitrate"`
	URL             string `json:"url"`
	SignatureCipher string `json:"signatureCipher"`
}

// bestOpusFormat returns the audio/webm Opus adaptiveFormat with the
// highest bitrate.
func (s *streamingData) bestOpusFormat() (adaptiveFormat, bool) {
	var best adaptiveFormat
	var found bool
	for _, f := range s.AdaptiveFormats {
		if f.MimeType != `audio/webm; codecs="opus"` {
			continue
		}
		if !found || f.Bitrate > best.Bitrate {
			best = f
			found = true
		}
	}
	return best, found
}

// ytInitialDataJSON is the subset of ytInitialData this package reads: the
// owner-badge trees for the watch page and the search-results video list.
type ytInitialDataJSON struct {
	Contents struct {
		TwoColumnWatchNextResults *struct {
			Results struct {
				Results struct {
					Contents []struct {
						VideoSecondaryInfoRenderer *struct {
							Owner struct {
								VideoOwnerRenderer struct {
									Badges []badgeJSON `json:"badges"`
								} `json:"videoOwnerRenderer"`
							} `json:"owner"`
						} `json:"videoSecondaryInfoRenderer"`
					} `json:"contents"`
				} `json:"results"`
			} `json:"results"`
		} `json:"twoColumnWatchNextResults"`

		TwoColumnSearchResultsRenderer *struct {
			PrimaryContents struct {
				SectionListRenderer struct {
					Contents []struct {
						ItemSectionRenderer struct {
							Contents []struct {
								VideoRenderer *videoRendererJSON `json:"videoRenderer"`
							} `json:"contents"`
						} `json:"itemSectionRenderer"`
					} `json:"contents"`
				} `json:"sectionListRenderer"`
			} `json:"primaryContents"`
		} `json:"twoColumnSearchResultsRenderer"`
	} `json:"contents"`
}

type badgeJSON struct {
	MetadataBadgeRenderer struct {
		Icon struct {
			IconType string `json:"iconType"`
		} `json:"icon"`
	} `json:"metadataBadgeRenderer"`
}

func hasOfficialArtistBadge(badges []badgeJSON) bool {
	for _, b := range badges {
		if b.MetadataBadgeRenderer.Icon.IconType == "OFFICIAL_ARTIST_BADGE" {
			return true
		}
	}
	return false
}

type videoRendererJSON struct {
	VideoID       string       `json:"videoId"`
	Title         textRunsJSON `json:"title"`
	OwnerText     textRunsJSON `json:"ownerText"`
	LengthText    textRunsJSON `json:"lengthText"`
	ViewCountText textRunsJSON `json:"viewCountText"`
	OwnerBadges   []badgeJSON  `json:"ownerBadges"`
}

// textRunsJSON covers YouTube's two common text shapes: a plain
// simpleText field, or a list of runs whose first entry is the text to
// use (matching the original's try_runs helper).
type textRunsJSON struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t textRunsJSON) text() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	if len(t.Runs) > 0 {
		return t.Runs[0].Text
	}
	return ""
}
