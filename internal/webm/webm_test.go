package webm

import (
	"bytes"
	"math"
	"testing"

	"github.com/shi-gg/opusfeed/internal/ebml"
)

// memSource is the same minimal in-memory ebml.Source the ebml package's
// own tests use, duplicated here since it's unexported there.
type memSource struct {
	data []byte
}

func (m *memSource) Read(buf []byte, pos *int64, n int) error {
	if *pos < 0 || *pos+int64(n) > int64(len(m.data)) {
		return ebml.ErrOutOfRange
	}
	copy(buf[:n], m.data[*pos:*pos+int64(n)])
	*pos += int64(n)
	return nil
}

func (m *memSource) Length() (int64, error) {
	return int64(len(m.data)), nil
}

func (m *memSource) Close() error { return nil }

// idBytes renders an EBML id (full on-wire bit pattern, marker included)
// as its minimal-width big-endian encoding.
func idBytes(id ebml.ID) []byte {
	v := uint32(id)
	switch {
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		return []byte{byte(v >> 8), byte(v)}
	case v <= 0xFFFFFF:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// elem writes id, a one-octet size VLQ (payload must be < 127 bytes) and
// the payload.
func elem(buf *bytes.Buffer, id ebml.ID, payload []byte) {
	buf.Write(idBytes(id))
	buf.Write(ebml.EncodeVLQ(uint64(len(payload)), 1, true))
	buf.Write(payload)
}

func uintPayload(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v & 0xFF)
		v >>= 8
	}
	return out
}

// buildMinimalSegment constructs Info(TimecodeScale=1_000_000, Duration),
// Tracks(one A_OPUS track) and Cues(two points) as a Segment's direct
// children, with no SeekHead present so parseHeader falls back to scanning
// for each of them.
func buildMinimalSegment(t *testing.T, durationTicks float64, cueTimes []uint64, clusterPositions []int64) []byte {
	t.Helper()

	var info bytes.Buffer
	elem(&info, ebml.IDTimecodeScale, uintPayload(1_000_000, 3))
	durBits := float64bits(durationTicks)
	elem(&info, ebml.IDDuration, durBits)

	var audio bytes.Buffer
	elem(&audio, ebml.IDSamplingFrequency, float32Bits(48000))
	elem(&audio, ebml.IDChannels, uintPayload(2, 1))

	var trackEntry bytes.Buffer
	elem(&trackEntry, ebml.IDTrackNumber, uintPayload(1, 1))
	elem(&trackEntry, ebml.IDCodecID, []byte("A_OPUS"))
	elem(&trackEntry, ebml.IDAudio, audio.Bytes())

	var tracks bytes.Buffer
	elem(&tracks, ebml.IDTrackEntry, trackEntry.Bytes())

	var cues bytes.Buffer
	for i, ct := range cueTimes {
		var tp bytes.Buffer
		elem(&tp, ebml.IDCueTrack, uintPayload(1, 1))
		elem(&tp, ebml.IDCueClusterPosition, uintPayload(uint64(clusterPositions[i]), 4))

		var point bytes.Buffer
		elem(&point, ebml.IDCueTime, uintPayload(ct, 2))
		elem(&point, ebml.IDCueTrackPositions, tp.Bytes())

		elem(&cues, ebml.IDCuePoint, point.Bytes())
	}

	var segment bytes.Buffer
	elem(&segment, ebml.IDInfo, info.Bytes())
	elem(&segment, ebml.IDTracks, tracks.Bytes())
	elem(&segment, ebml.IDCues, cues.Bytes())

	return segment.Bytes()
}

func float64bits(f float64) []byte {
	bits := make([]byte, 8)
	u := math.Float64bits(f)
	for i := 7; i >= 0; i-- {
		bits[i] = byte(u & 0xFF)
		u >>= 8
	}
	return bits
}

func float32Bits(f float64) []byte {
	bits := make([]byte, 4)
	u := math.Float32bits(float32(f))
	for i := 3; i >= 0; i-- {
		bits[i] = byte(u & 0xFF)
		u >>= 8
	}
	return bits
}

func TestBuildCueEntriesDerivesDurationsFromNextStart(t *testing.T) {
	h := &header{
		timecodeScale: 1_000_000,
		rawDuration:   4000, // 4000ms -> 4s at this scale
		cues: []CuePoint{
			{Time: 0, ClusterPosition: 100},
			{Time: 2000, ClusterPosition: 200},
		},
	}
	cues := buildCueEntries(h)
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}
	if cues[0].startSeconds != 0 || cues[0].durationSeconds != 2.0 {
		t.Fatalf("cues[0] = %+v, want start=0 duration=2", cues[0])
	}
	if cues[1].startSeconds != 2.0 || cues[1].durationSeconds != 2.0 {
		t.Fatalf("cues[1] = %+v, want start=2 duration=2", cues[1])
	}
}

func TestCueIndexForTime(t *testing.T) {
	d := &Decoder{cues: []cueEntry{
		{startSeconds: 0, durationSeconds: 2},
		{startSeconds: 2, durationSeconds: 2},
		{startSeconds: 4, durationSeconds: 1},
	}}
	cases := []struct {
		target float64
		want   int
	}{
		{0, 0},
		{1.5, 0},
		{2.0, 1},
		{3.9, 1},
		{4.5, 2},
		{100, 2},
	}
	for _, tc := range cases {
		if got := d.cueIndexForTime(tc.target); got != tc.want {
			t.Errorf("cueIndexForTime(%v) = %d, want %d", tc.target, got, tc.want)
		}
	}
}

func TestTrimWindowLockedBoundsPriorClusters(t *testing.T) {
	d := &Decoder{
		clusters:            make([]clusterWindowEntry, 6),
		currentClusterIndex: 10,
		activeCluster:       5,
	}
	d.trimWindowLocked()
	if len(d.clusters) != maxPriorClusters+1 {
		t.Fatalf("len(clusters) = %d, want %d", len(d.clusters), maxPriorClusters+1)
	}
	if d.activeCluster != maxPriorClusters {
		t.Fatalf("activeCluster = %d, want %d", d.activeCluster, maxPriorClusters)
	}
	if d.currentClusterIndex != 10+(5-maxPriorClusters) {
		t.Fatalf("currentClusterIndex = %d, want %d", d.currentClusterIndex, 10+(5-maxPriorClusters))
	}
}

func TestClampBlockOffset(t *testing.T) {
	if got := clampBlockOffset(0.5, 10); got != 5 {
		t.Errorf("clampBlockOffset(0.5, 10) = %d, want 5", got)
	}
	if got := clampBlockOffset(1.5, 10); got != 9 {
		t.Errorf("clampBlockOffset(1.5, 10) = %d, want 9", got)
	}
	if got := clampBlockOffset(0.1, 0); got != 0 {
		t.Errorf("clampBlockOffset(0.1, 0) = %d, want 0", got)
	}
}

func TestParseHeaderReadsTrackAndCues(t *testing.T) {
	segPayload := buildMinimalSegment(t, 4000, []uint64{0, 2000}, []int64{0, 0})

	var root bytes.Buffer
	elem(&root, ebml.IDSegment, segPayload)

	src := &memSource{data: root.Bytes()}
	hdr, err := parseHeader(src)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if hdr.track.CodecID != "A_OPUS" || hdr.track.Number != 1 {
		t.Fatalf("track = %+v", hdr.track)
	}
	if hdr.track.SamplingRate != 48000 || hdr.track.Channels != 2 {
		t.Fatalf("track audio params = %+v", hdr.track)
	}
	if len(hdr.cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(hdr.cues))
	}
	if hdr.durationSeconds() != 4.0 {
		t.Fatalf("durationSeconds() = %v, want 4.0", hdr.durationSeconds())
	}
}

func TestParseHeaderMissingTracksIsFatal(t *testing.T) {
	var segment bytes.Buffer
	var info bytes.Buffer
	elem(&info, ebml.IDTimecodeScale, uintPayload(1_000_000, 3))
	elem(&segment, ebml.IDInfo, info.Bytes())

	var root bytes.Buffer
	elem(&root, ebml.IDSegment, segment.Bytes())

	src := &memSource{data: root.Bytes()}
	if _, err := parseHeader(src); err != ErrNoOpusTrack {
		t.Fatalf("err = %v, want ErrNoOpusTrack", err)
	}
}

func TestSampleBeforeReadyReturnsSilenceThenBuffering(t *testing.T) {
	d := &Decoder{}
	out := make([]float32, 20)
	for i := 0; i < bufferingAfterAttempts; i++ {
		active, buffering := d.Sample(out, 10)
		if !active {
			t.Fatalf("iteration %d: active = false, want true before ready", i)
		}
		if buffering {
			t.Fatalf("iteration %d: buffering = true too early (attempts=%d)", i, i+1)
		}
	}
	active, buffering := d.Sample(out, 10)
	if !active || !buffering {
		t.Fatalf("after %d starved attempts: active=%v buffering=%v, want true,true", bufferingAfterAttempts+1, active, buffering)
	}
	for _, v := range out {
		if v != 0 {
			t.Fatalf("sample output not silent: %v", out)
		}
	}
}

func TestSampleAfterFatalIsAlwaysSilenceNeverBuffering(t *testing.T) {
	d := &Decoder{fatal: true}
	out := make([]float32, 20)
	for i := 0; i < 3; i++ {
		active, buffering := d.Sample(out, 10)
		if !active || buffering {
			t.Fatalf("iteration %d: active=%v buffering=%v, want true,false", i, active, buffering)
		}
	}
}

func TestSampleEndOfStreamReportsInactive(t *testing.T) {
	d := &Decoder{
		ready: true,
		hdr:   &header{track: TrackInfo{Channels: 2, SamplingRate: 48000}},
		cues:  []cueEntry{{startSeconds: 0, durationSeconds: 1}},
		// currentClusterIndex + activeCluster == len(cues): past the last cue.
		currentClusterIndex: 1,
	}
	out := make([]float32, 20)
	active, buffering := d.Sample(out, 10)
	if active || buffering {
		t.Fatalf("active=%v buffering=%v, want false,false at end of stream", active, buffering)
	}
}
