// Package webm decodes a WebM/Matroska container carrying a single Opus
// audio track into a real-time pull stream of PCM frames, using
// internal/ebml for structure and gopkg.in/hraban/opus.v2 for the codec
// itself.
package webm

import "errors"

var (
	// ErrNoOpusTrack is returned when header parsing finds no A_OPUS track.
	ErrNoOpusTrack = errors.New("webm: no opus audio track found")
	// ErrNoClusters is returned when a stream has no Cluster elements at all.
	ErrNoClusters = errors.New("webm: no clusters found")
	// ErrNoCues is returned when a stream carries no Cues index: fatal,
	// since the prefetch worker indexes exclusively via cue points.
	ErrNoCues = errors.New("webm: no cues found")
)

// AudioDecoder is the capability trait a real-time PCM pull source exposes,
// satisfied by *Decoder: sample rate/duration/position reporting, seeking,
// and pulling one window of decoded PCM at a time.
type AudioDecoder interface {
	SampleRate() float64
	Duration() float64
	Position() float64
	Seek(targetSeconds float64)
	Sample(out []float32, frames int) (active bool, buffering bool)
	Close() error
}

// TrackInfo describes the Opus audio track selected from Tracks.
type TrackInfo struct {
	Number       uint64
	SamplingRate float64
	Channels     int
	CodecID      string
}

// CuePoint is a decoded entry from the Cues element: a timecode (in track
// timecode-scale units) paired with the byte offset of the Cluster that
// contains it.
type CuePoint struct {
	Time            uint64
	ClusterPosition int64
}
