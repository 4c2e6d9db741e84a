package webm

import (
	"fmt"

	"github.com/shi-gg/opusfeed/internal/ebml"
)

// header holds everything decoded from the Segment's top-level elements
// before any Cluster is touched: the track to decode, the timecode scale
// needed to convert cluster/block timecodes to milliseconds, and (if
// present) the Cues index.
type header struct {
	segmentFrom int64
	segmentTo   int64

	track          TrackInfo
	timecodeScale  uint64
	rawDuration    float64 // ticks, 0 if Info carried none
	cues           []CuePoint
	firstClusterAt int64 // -1 if unknown
}

// durationSeconds converts rawDuration ticks to seconds using timecodeScale
// (nanoseconds per tick), matching Matroska's convention: seconds =
// raw_ticks * time_scale / 1e9.
func (h *header) durationSeconds() float64 {
	return h.rawDuration * float64(h.timecodeScale) / 1e9
}

const defaultTimecodeScale = 1_000_000 // ns per timecode tick, Matroska default

// parseHeader scans the EBML header and Segment's SeekHead/Info/Tracks/Cues,
// resolving SeekHead-listed positions (relative to the Segment payload
// start) so callers can jump straight to Tracks/Cues without a linear scan.
func parseHeader(src ebml.Source) (*header, error) {
	length, err := src.Length()
	if err != nil {
		return nil, fmt.Errorf("webm: length: %w", err)
	}

	top := ebml.NewElementRange(src, 0, length)

	var segment *ebml.Element
	for {
		el, ok, err := top.Next()
		if err != nil {
			return nil, fmt.Errorf("webm: scanning top level: %w", err)
		}
		if !ok {
			break
		}
		if el.ID == ebml.IDSegment {
			e := el
			segment = &e
			break
		}
	}
	if segment == nil {
		return nil, fmt.Errorf("webm: no Segment element found")
	}

	h := &header{
		segmentFrom:    segment.From,
		segmentTo:      segment.To,
		timecodeScale:  defaultTimecodeScale,
		firstClusterAt: -1,
	}

	seeker := ebml.NewSearcher(src, segment.From, segment.To)

	seekHead, ok, err := seeker.Get(ebml.IDSeekHead)
	if err != nil {
		return nil, err
	}

	var infoPos, tracksPos, cuesPos int64 = -1, -1, -1
	if ok {
		entries, err := ebml.NewSearcher(src, seekHead.From, seekHead.To).GetAll(ebml.IDSeek)
		if err != nil {
			return nil, fmt.Errorf("webm: reading SeekHead: %w", err)
		}
		for _, seek := range entries {
			sub := ebml.NewSearcher(src, seek.From, seek.To)
			idEl, ok, err := sub.Get(ebml.IDSeekID)
			if err != nil || !ok {
				continue
			}
			posEl, ok, err := sub.Get(ebml.IDSeekPosition)
			if err != nil || !ok {
				continue
			}
			target := decodeSeekID(idEl.Binary)
			absolute := segment.From + int64(posEl.UInt)
			switch target {
			case ebml.IDInfo:
				infoPos = absolute
			case ebml.IDTracks:
				tracksPos = absolute
			case ebml.IDCues:
				cuesPos = absolute
			}
		}
	}

	if infoEl, found, err := findOrSeek(src, seeker, segment.To, ebml.IDInfo, infoPos); err != nil {
		return nil, err
	} else if found {
		if err := h.applyInfo(src, infoEl); err != nil {
			return nil, err
		}
	}

	tracksEl, found, err := findOrSeek(src, seeker, segment.To, ebml.IDTracks, tracksPos)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoOpusTrack
	}
	track, err := findOpusTrack(src, tracksEl)
	if err != nil {
		return nil, err
	}
	h.track = track

	if cuesEl, found, err := findOrSeek(src, seeker, segment.To, ebml.IDCues, cuesPos); err != nil {
		return nil, err
	} else if found {
		cues, err := parseCues(src, cuesEl, segment.From)
		if err != nil {
			return nil, err
		}
		h.cues = cues
	}

	if first, ok, err := findFirstCluster(src, segment.From, segment.To); err != nil {
		return nil, err
	} else if ok {
		h.firstClusterAt = first
	}

	return h, nil
}

// findOrSeek returns the element at a SeekHead-resolved position when one
// is known (position >= 0), otherwise falls back to scanning the shared
// searcher, which is cheap since the searcher retains what it has already
// read.
func findOrSeek(src ebml.Source, seeker *ebml.Searcher, segmentTo int64, id ebml.ID, resolvedPos int64) (ebml.Element, bool, error) {
	if resolvedPos >= 0 {
		p := resolvedPos
		el, err := ebml.ReadElement(src, &p)
		if err != nil {
			return ebml.Element{}, false, fmt.Errorf("webm: reading seeked element: %w", err)
		}
		return el, true, nil
	}
	return seeker.Get(id)
}

func decodeSeekID(binary []byte) ebml.ID {
	var v uint32
	for _, b := range binary {
		v = v<<8 | uint32(b)
	}
	return ebml.ID(v)
}

func (h *header) applyInfo(src ebml.Source, info ebml.Element) error {
	s := ebml.NewSearcher(src, info.From, info.To)
	if scale, ok, err := s.Get(ebml.IDTimecodeScale); err != nil {
		return err
	} else if ok {
		h.timecodeScale = scale.UInt
	}
	if dur, ok, err := s.Get(ebml.IDDuration); err != nil {
		return err
	} else if ok {
		h.rawDuration = dur.Float
	}
	return nil
}

func findOpusTrack(src ebml.Source, tracks ebml.Element) (TrackInfo, error) {
	entries, err := ebml.NewSearcher(src, tracks.From, tracks.To).GetAll(ebml.IDTrackEntry)
	if err != nil {
		return TrackInfo{}, fmt.Errorf("webm: reading TrackEntry list: %w", err)
	}
	for _, entry := range entries {
		s := ebml.NewSearcher(src, entry.From, entry.To)
		codec, ok, err := s.Get(ebml.IDCodecID)
		if err != nil {
			return TrackInfo{}, err
		}
		if !ok || codec.Str != "A_OPUS" {
			continue
		}
		numberEl, ok, err := s.Get(ebml.IDTrackNumber)
		if err != nil || !ok {
			return TrackInfo{}, fmt.Errorf("webm: opus track missing TrackNumber")
		}
		audioEl, ok, err := s.Get(ebml.IDAudio)
		if err != nil {
			return TrackInfo{}, err
		}
		info := TrackInfo{Number: numberEl.UInt, CodecID: codec.Str, SamplingRate: 48000, Channels: 2}
		if ok {
			audioSearch := ebml.NewSearcher(src, audioEl.From, audioEl.To)
			if freq, ok, err := audioSearch.Get(ebml.IDSamplingFrequency); err == nil && ok {
				info.SamplingRate = freq.Float
			}
			if ch, ok, err := audioSearch.Get(ebml.IDChannels); err == nil && ok {
				info.Channels = int(ch.UInt)
			}
		}
		return info, nil
	}
	return TrackInfo{}, ErrNoOpusTrack
}

func parseCues(src ebml.Source, cues ebml.Element, segmentFrom int64) ([]CuePoint, error) {
	points, err := ebml.NewSearcher(src, cues.From, cues.To).GetAll(ebml.IDCuePoint)
	if err != nil {
		return nil, fmt.Errorf("webm: reading Cues: %w", err)
	}
	out := make([]CuePoint, 0, len(points))
	for _, point := range points {
		s := ebml.NewSearcher(src, point.From, point.To)
		timeEl, ok, err := s.Get(ebml.IDCueTime)
		if err != nil || !ok {
			continue
		}
		tp, ok, err := s.Get(ebml.IDCueTrackPositions)
		if err != nil || !ok {
			continue
		}
		tps := ebml.NewSearcher(src, tp.From, tp.To)
		posEl, ok, err := tps.Get(ebml.IDCueClusterPosition)
		if err != nil || !ok {
			continue
		}
		out = append(out, CuePoint{Time: timeEl.UInt, ClusterPosition: segmentFrom + int64(posEl.UInt)})
	}
	return out, nil
}

func findFirstCluster(src ebml.Source, from, to int64) (int64, bool, error) {
	it := ebml.NewElementRange(src, from, to)
	for {
		el, ok, err := it.Next()
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		if el.ID == ebml.IDCluster {
			return el.Position, true, nil
		}
	}
}
