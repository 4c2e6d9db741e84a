package webm

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shi-gg/opusfeed/internal/ebml"
	"gopkg.in/hraban/opus.v2"
)

const (
	// frameDurationSeconds is the worst-case Opus frame length this
	// decoder budgets scratch space for (60ms).
	frameDurationSeconds = 0.06
	// maxPriorClusters bounds the prefetch window: at most this many
	// clusters may precede activeCluster before trim discards the oldest.
	maxPriorClusters = 3
	// defaultPrefetchAheadSeconds is how far past the play head the worker
	// keeps clusters decoded-headers-resident when Start is given no
	// explicit prefetch window.
	defaultPrefetchAheadSeconds = 10.0
	// workerPollInterval is the prefetch worker's idle sleep between
	// seek/prefetch iterations.
	workerPollInterval = 10 * time.Millisecond
	// bufferingAfterAttempts is the consecutive-starved-pull threshold
	// past which Sample reports buffering to the host.
	bufferingAfterAttempts = 10
)

// cueEntry is a Cues index entry converted to seconds, with duration
// derived from the next cue's start (or container duration for the last).
type cueEntry struct {
	startSeconds    float64
	durationSeconds float64
	clusterPos      int64
}

// clusterWindowEntry is one decoded cluster's track-filtered block list,
// held in Decoder.clusters while it sits within the prefetch window.
type clusterWindowEntry struct {
	blocks []block
}

// seekRequest is the target-time mailbox the real-time Seek caller writes
// to and the prefetch worker atomically reads-and-clears, guarded by its
// own mutex (leaf relative to the context mutex in the lock order, but
// acquired first: seek-mutex -> context-mutex).
type seekRequest struct {
	mu      sync.Mutex
	pending bool
	target  float64
}

func (r *seekRequest) set(target float64) {
	r.mu.Lock()
	r.pending = true
	r.target = target
	r.mu.Unlock()
}

func (r *seekRequest) takeAndClear() (pending bool, target float64) {
	r.mu.Lock()
	pending, target = r.pending, r.target
	r.pending = false
	r.mu.Unlock()
	return
}

// Source is the byte source a Decoder consumes: the ebml.Source read
// contract plus a lifecycle Close, matching internal/bytesource.Source.
type Source interface {
	ebml.Source
	Close() error
}

// Decoder streams Opus-encoded audio out of a WebM container as real-time
// pull samples (Sample). A background prefetch worker, started by Start,
// performs all I/O and Opus decoding; the host-facing Sample call never
// blocks on I/O and holds the context mutex only long enough to copy
// already-decoded PCM.
type Decoder struct {
	logger *slog.Logger
	src    Source

	prefetchAheadSeconds float64

	seek seekRequest

	// mu is the context mutex: guards everything below. The worker holds
	// it only while mutating window/PCM state, never across I/O.
	mu     sync.Mutex
	hdr    *header
	cues   []cueEntry
	ready  bool
	fatal  bool
	closed bool

	opusDecoder *opus.Decoder
	pcmScratch  []float32
	pcmIndex    int
	pcmSize     int

	// clusters is the prefetch window: an ordered run of decoded clusters.
	// currentClusterIndex is the absolute cue index of clusters[0].
	// activeCluster is an offset *into this window* (not an absolute cue
	// index), activeBlock an offset into clusters[activeCluster].blocks.
	clusters            []clusterWindowEntry
	currentClusterIndex int
	activeCluster       int
	activeBlock         int

	sampleAttempts int

	positionBits atomic.Uint64 // math.Float64bits(position in seconds)

	terminate chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Start launches the prefetch worker, which parses the container header
// and then loops prefetching/seeking until Close. It returns immediately;
// callers poll Ready (implicitly, via Sample's buffering behavior) rather
// than blocking on header parse. prefetchAhead bounds how far past the
// play head the worker keeps clusters resident; zero or negative falls
// back to defaultPrefetchAheadSeconds.
func Start(src Source, logger *slog.Logger, prefetchAhead time.Duration) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	ahead := defaultPrefetchAheadSeconds
	if prefetchAhead > 0 {
		ahead = prefetchAhead.Seconds()
	}
	d := &Decoder{
		logger:               logger.With(slog.String("component", "webm.decoder")),
		src:                  src,
		prefetchAheadSeconds: ahead,
		terminate:            make(chan struct{}),
		done:                 make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Decoder) run() {
	defer close(d.done)

	hdr, cues, dec, scratch, err := d.loadHeader()
	if err != nil {
		d.logger.Error("loading webm header", slog.Any("error", err))
		d.mu.Lock()
		d.fatal = true
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	d.hdr = hdr
	d.cues = cues
	d.opusDecoder = dec
	d.pcmScratch = scratch
	d.ready = true
	d.mu.Unlock()

	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.terminate:
			return
		default:
		}

		d.serviceSeek()
		d.prefetchAhead()

		select {
		case <-d.terminate:
			return
		case <-ticker.C:
		}
	}
}

// loadHeader parses the container header and initializes the Opus decoder.
// Missing Info/Tracks/Cues, absence of an Opus track, or zero cues are all
// fatal: there is no cluster index to prefetch or seek against.
func (d *Decoder) loadHeader() (*header, []cueEntry, *opus.Decoder, []float32, error) {
	hdr, err := parseHeader(d.src)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if hdr.firstClusterAt < 0 {
		return nil, nil, nil, nil, ErrNoClusters
	}
	if len(hdr.cues) == 0 {
		return nil, nil, nil, nil, ErrNoCues
	}

	cues := buildCueEntries(hdr)

	dec, err := opus.NewDecoder(int(hdr.track.SamplingRate), hdr.track.Channels)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("webm: creating opus decoder: %w", err)
	}
	scratch := make([]float32, frameCapacitySamples(hdr.track.SamplingRate)*hdr.track.Channels)
	return hdr, cues, dec, scratch, nil
}

// buildCueEntries converts the header's tick-based Cues into second-based
// entries, deriving each duration from the next cue's start (or container
// duration for the last).
func buildCueEntries(hdr *header) []cueEntry {
	sort.Slice(hdr.cues, func(i, j int) bool { return hdr.cues[i].Time < hdr.cues[j].Time })

	total := hdr.durationSeconds()
	out := make([]cueEntry, len(hdr.cues))
	for i, c := range hdr.cues {
		out[i].startSeconds = float64(c.Time) * float64(hdr.timecodeScale) / 1e9
		out[i].clusterPos = c.ClusterPosition
	}
	for i := 0; i < len(out)-1; i++ {
		out[i].durationSeconds = out[i+1].startSeconds - out[i].startSeconds
	}
	if n := len(out); n > 0 {
		last := total - out[n-1].startSeconds
		if last <= 0 {
			last = frameDurationSeconds
		}
		out[n-1].durationSeconds = last
	}
	return out
}

// frameCapacitySamples is the number of samples per channel the scratch
// buffer must hold to decode any legal Opus frame at sampleRate without
// reallocating: ceil(sampleRate * 0.06).
func frameCapacitySamples(sampleRate float64) int {
	return int(math.Ceil(sampleRate * frameDurationSeconds))
}

// Ready reports whether the header has loaded successfully and Sample can
// serve real audio. SampleRate, Duration and TrackInfo all return zero
// values until Ready.
func (d *Decoder) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready && !d.fatal
}

// SampleRate returns the selected track's sampling rate, or 0 before Ready.
func (d *Decoder) SampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return 0
	}
	return d.hdr.track.SamplingRate
}

// Duration returns the container duration in seconds, or 0 before Ready.
func (d *Decoder) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return 0
	}
	return d.hdr.durationSeconds()
}

// TrackInfo reports the selected audio track's parameters, zero value
// before Ready.
func (d *Decoder) TrackInfo() TrackInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return TrackInfo{}
	}
	return d.hdr.track
}

// Position returns the current playback position in seconds. Always
// valid, safe from any goroutine; advanced by Sample and snapped forward
// by Seek before the worker has even observed the request.
func (d *Decoder) Position() float64 {
	return math.Float64frombits(d.positionBits.Load())
}

func (d *Decoder) setPosition(seconds float64) {
	d.positionBits.Store(math.Float64bits(seconds))
}

// Seek requests that playback jump to targetSeconds. It does not block:
// Position reflects the new target immediately, but Sample keeps emitting
// silence (with buffering once starved past the threshold) until the
// prefetch worker observes the request and loads the corresponding
// cluster window.
func (d *Decoder) Seek(targetSeconds float64) {
	d.setPosition(targetSeconds)
	d.seek.set(targetSeconds)
}

// cueIndexForTime returns the last cue index i with cues[i].start <=
// target, via binary search. cues is immutable after the worker sets
// ready, so this needs no lock.
func (d *Decoder) cueIndexForTime(target float64) int {
	idx := sort.Search(len(d.cues), func(i int) bool {
		return d.cues[i].startSeconds > target
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// serviceSeek is the prefetch worker's seek-handling step: if a target has
// landed since the last iteration, jump the active cluster/block (or
// refetch one if it isn't already in the prefetch window).
func (d *Decoder) serviceSeek() {
	pending, target := d.seek.takeAndClear()
	if !pending {
		return
	}

	idx := d.cueIndexForTime(target)
	cue := d.cues[idx]
	fraction := 1.0
	if cue.durationSeconds > 0 {
		fraction = (target - cue.startSeconds) / cue.durationSeconds
	}

	if fraction >= 1.0 && idx == len(d.cues)-1 {
		d.mu.Lock()
		d.clusters = nil
		d.currentClusterIndex = len(d.cues)
		d.activeCluster = 0
		d.activeBlock = 0
		d.pcmIndex, d.pcmSize = 0, 0
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	inWindow := idx >= d.currentClusterIndex && idx < d.currentClusterIndex+len(d.clusters)
	if inWindow {
		offset := idx - d.currentClusterIndex
		blocksLen := len(d.clusters[offset].blocks)
		d.activeCluster = offset
		d.activeBlock = clampBlockOffset(fraction, blocksLen)
		d.pcmIndex, d.pcmSize = 0, 0
		d.trimWindowLocked()
		d.mu.Unlock()
		return
	}
	d.clusters = nil
	d.mu.Unlock()

	blocks, err := readClusterBlocksAt(d.src, cue.clusterPos, d.trackNumber())
	if err != nil {
		d.logger.Error("reading cluster for seek", slog.Any("error", err))
		d.markFatal()
		return
	}

	d.mu.Lock()
	d.clusters = []clusterWindowEntry{{blocks: blocks}}
	d.currentClusterIndex = idx
	d.activeCluster = 0
	d.activeBlock = clampBlockOffset(fraction, len(blocks))
	d.pcmIndex, d.pcmSize = 0, 0
	d.mu.Unlock()
}

func clampBlockOffset(fraction float64, blocksLen int) int {
	if blocksLen == 0 {
		return 0
	}
	i := int(fraction * float64(blocksLen))
	if i < 0 {
		return 0
	}
	if i >= blocksLen {
		return blocksLen - 1
	}
	return i
}

// prefetchAhead is the worker's lookahead step: keep roughly
// prefetchAheadSeconds of cues decoded ahead of the play head.
func (d *Decoder) prefetchAhead() {
	d.mu.Lock()
	loadNext := d.currentClusterIndex + len(d.clusters)
	if loadNext >= len(d.cues) {
		d.mu.Unlock()
		return
	}
	needMore := d.cues[loadNext].startSeconds < d.Position()+d.prefetchAheadSeconds
	trackNumber := d.hdr.track.Number
	d.mu.Unlock()
	if !needMore {
		return
	}

	blocks, err := readClusterBlocksAt(d.src, d.cues[loadNext].clusterPos, trackNumber)
	if err != nil {
		d.logger.Error("prefetching cluster", slog.Any("error", err))
		d.markFatal()
		return
	}

	d.mu.Lock()
	if d.currentClusterIndex+len(d.clusters) == loadNext {
		d.clusters = append(d.clusters, clusterWindowEntry{blocks: blocks})
	}
	d.mu.Unlock()
}

func (d *Decoder) trackNumber() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hdr.track.Number
}

func (d *Decoder) markFatal() {
	d.mu.Lock()
	d.fatal = true
	d.mu.Unlock()
}

// trimWindowLocked enforces MAX_PRIOR=3: at most this many clusters may
// precede activeCluster. Caller holds mu.
func (d *Decoder) trimWindowLocked() {
	if d.activeCluster > maxPriorClusters {
		drop := d.activeCluster - maxPriorClusters
		d.clusters = d.clusters[drop:]
		d.currentClusterIndex += drop
		d.activeCluster -= drop
	}
}

// Sample fills frames stereo samples into out (length frames*2,
// interleaved L/R) from the channels of the decoded track (channel 0 and
// 1, downmixed to stereo when the track is mono). active=false means
// end-of-stream; buffering=true asks the host to treat this call as
// starved. Sample never blocks on I/O and never raises; malformed input,
// decode errors, and missing tracks all surface as silence plus
// active=true.
func (d *Decoder) Sample(out []float32, frames int) (active bool, buffering bool) {
	d.mu.Lock()
	if d.fatal || d.closed {
		d.mu.Unlock()
		silence(out, frames)
		return true, false
	}
	if !d.ready {
		d.sampleAttempts++
		attempts := d.sampleAttempts
		d.mu.Unlock()
		silence(out, frames)
		return true, attempts > bufferingAfterAttempts
	}
	d.mu.Unlock()

	d.seek.mu.Lock()
	defer d.seek.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.seek.pending
	pos := 0
	for pos < frames {
		if d.currentClusterIndex+d.activeCluster >= len(d.cues) {
			d.sampleAttempts = 0
			return false, false
		}
		if pending || d.activeCluster >= len(d.clusters) {
			silence(out[pos*2:frames*2], frames-pos)
			d.sampleAttempts++
			return true, d.sampleAttempts > bufferingAfterAttempts
		}
		if d.pcmIndex >= d.pcmSize {
			if !d.advanceBlockLocked() {
				if d.fatal {
					d.sampleAttempts = 0
					return true, false
				}
				// Window exhausted but more cues may remain un-prefetched:
				// loop back to the top so the EOS/window checks classify
				// it (end-of-stream vs starved-for-prefetch) correctly.
				continue
			}
			continue
		}

		avail := d.pcmSize - d.pcmIndex
		need := frames - pos
		n := avail
		if n > need {
			n = need
		}
		ch := d.hdr.track.Channels
		for i := 0; i < n; i++ {
			base := (d.pcmIndex + i) * ch
			out[(pos+i)*2] = d.pcmScratch[base]
			if ch > 1 {
				out[(pos+i)*2+1] = d.pcmScratch[base+1]
			} else {
				out[(pos+i)*2+1] = d.pcmScratch[base]
			}
		}
		d.pcmIndex += n
		pos += n
		d.setPosition(d.Position() + float64(n)/d.hdr.track.SamplingRate)
	}

	active = d.currentClusterIndex+d.activeCluster < len(d.cues)
	d.sampleAttempts = 0
	return active, false
}

// advanceBlockLocked steps over exhausted blocks/clusters and decodes the
// next block belonging to the active cluster into pcmScratch. Caller
// holds mu. Returns false when the window is exhausted (end-of-stream for
// now, resumed by the next prefetch) or a decode error makes the stream
// fatal.
func (d *Decoder) advanceBlockLocked() bool {
	for {
		if d.activeCluster >= len(d.clusters) {
			return false
		}
		cw := d.clusters[d.activeCluster]
		if d.activeBlock >= len(cw.blocks) {
			d.activeCluster++
			d.activeBlock = 0
			d.trimWindowLocked()
			continue
		}

		b := cw.blocks[d.activeBlock]
		d.activeBlock++

		n, err := d.opusDecoder.DecodeFloat32(b.payload, d.pcmScratch)
		if err != nil {
			d.logger.Error("opus decode", slog.Any("error", err))
			d.fatal = true
			return false
		}
		d.pcmSize = n * d.hdr.track.Channels
		d.pcmIndex = 0
		return true
	}
}

func silence(out []float32, frames int) {
	n := frames * 2
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = 0
	}
}

// Close stops the prefetch worker and releases the byte source. Safe to
// call more than once; blocks until the worker has observed termination
// and exited, so the source is never closed while still in use.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		close(d.terminate)
		<-d.done
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
	})
	return d.src.Close()
}
