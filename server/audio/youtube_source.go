package audio

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shi-gg/opusfeed/internal/bytesource"
	"github.com/shi-gg/opusfeed/internal/webm"
	"github.com/shi-gg/opusfeed/internal/youtube"
	"gopkg.in/hraban/opus.v2"
)

// YouTubeSource resolves a YouTube video id to its Opus/WebM media URL,
// decodes it with internal/webm, and re-encodes the decoded PCM to the
// Opus frames Discord expects (48kHz stereo 20ms), mirroring MP3Source's
// decode-then-re-encode shape.
type YouTubeSource struct {
	decoder webm.AudioDecoder
	encoder *opus.Encoder

	pcmFloat   []float32
	pcmSamples []int16
	opusBuffer []byte

	srcSampleRate int
	resampleRatio float64

	position atomic.Int64
	closed   atomic.Bool
	mu       sync.Mutex
}

// NewYouTubeSource resolves id's playable media URL and starts streaming
// it. startTimeMs seeks the decoder before any frames are served.
func NewYouTubeSource(ctx context.Context, resolver *youtube.Resolver, id string, startTimeMs int64, logger *slog.Logger) (*YouTubeSource, error) {
	video, err := resolver.GetVideo(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve video: %w", err)
	}
	mediaURL, err := resolver.ResolveMediaURL(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("resolve media url: %w", err)
	}

	src, err := openCachedOrHTTPSource(resolver, video.ID, mediaURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open media source: %w", err)
	}

	decoder := webm.Start(src, logger, GetConfig().PrefetchWindow)
	if startTimeMs > 0 {
		decoder.Seek(float64(startTimeMs) / 1000.0)
	}

	encoder, err := opus.NewEncoder(opusSampleRate, opusChannels, opus.AppAudio)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	return &YouTubeSource{
		decoder:    decoder,
		encoder:    encoder,
		pcmSamples: make([]int16, opusFrameSize*opusChannels),
		opusBuffer: make([]byte, 4000),
	}, nil
}

// openCachedOrHTTPSource returns a FileSource reading id's already-cached
// download when one exists, otherwise an HTTPSource against mediaURL with a
// background download kicked off to populate the cache for next time.
func openCachedOrHTTPSource(resolver *youtube.Resolver, id, mediaURL string, logger *slog.Logger) (webm.Source, error) {
	cfg := GetConfig()
	if !cfg.YouTubeCacheEnabled {
		return newConfiguredHTTPSource(mediaURL, cfg, logger)
	}

	cachePath := filepath.Join(cfg.YouTubeCacheDir, id+".webm")
	if cached, err := bytesource.OpenFileSource(cachePath); err == nil {
		return cached, nil
	}

	httpSrc, err := newConfiguredHTTPSource(mediaURL, cfg, logger)
	if err != nil {
		return nil, err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := resolver.DownloadToCache(bgCtx, mediaURL, id, cfg.YouTubeCacheDir); err != nil {
			logger.Warn("background cache download failed", slog.String("id", id), slog.Any("error", err))
		}
	}()

	return httpSrc, nil
}

func newConfiguredHTTPSource(mediaURL string, cfg SourceConfig, logger *slog.Logger) (*bytesource.HTTPSource, error) {
	httpSrc, err := bytesource.NewHTTPSource(mediaURL, http.DefaultClient, logger)
	if err != nil {
		return nil, fmt.Errorf("create http source: %w", err)
	}
	httpSrc.SetCacheLimit(int64(cfg.HTTPCacheLimitBytes))
	return httpSrc, nil
}

// ProvideOpusFrame waits for the decoder to become ready (reporting
// buffering as silence) and otherwise pulls one 20ms window of decoded
// PCM, resampling to 48kHz if the source track runs at a different rate,
// and re-encodes it to Opus.
func (s *YouTubeSource) ProvideOpusFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrEOF
	}

	s.ensureBuffersLocked()

	inputFrames := len(s.pcmFloat) / 2
	if inputFrames == 0 {
		inputFrames = opusFrameSize
	}

	// Sample fills pcmFloat with silence whenever it is starved, so a
	// buffering result needs no special case here: it just encodes a
	// silent Opus frame like any other gap in the prefetch window.
	active, _ := s.decoder.Sample(s.pcmFloat, inputFrames)
	if !active {
		return nil, ErrEOF
	}

	s.floatToStereoInt16Locked(inputFrames)

	n, err := s.encoder.Encode(s.pcmSamples, s.opusBuffer)
	if err != nil {
		return nil, fmt.Errorf("encode opus: %w", err)
	}

	s.position.Add(20)

	frame := make([]byte, n)
	copy(frame, s.opusBuffer[:n])
	return frame, nil
}

// ensureBuffersLocked sizes the scratch buffer for the decoder's native
// sample rate once it becomes ready. webm.Decoder.Sample always emits
// stereo-interleaved output regardless of the source track's channel
// count, so only the rate (and therefore the resample ratio) can change.
// Before ready, SampleRate reports 0 and a default 48kHz sizing is used;
// Sample itself emits silence until the header has loaded.
func (s *YouTubeSource) ensureBuffersLocked() {
	rate := int(s.decoder.SampleRate())
	if rate == 0 {
		rate = opusSampleRate
	}
	if rate == s.srcSampleRate && s.pcmFloat != nil {
		return
	}
	s.srcSampleRate = rate
	s.resampleRatio = float64(opusSampleRate) / float64(rate)

	inputFrames := int(float64(opusFrameSize) / s.resampleRatio)
	if inputFrames < 1 {
		inputFrames = 1
	}
	s.pcmFloat = make([]float32, inputFrames*2)
}

// floatToStereoInt16Locked converts the decoded float32 stereo window into
// s.pcmSamples at 48kHz, resampling by linear interpolation when the
// source track's rate differs (rare for WebM Opus, whose tracks are
// almost always already 48kHz, but mirrored here for robustness).
func (s *YouTubeSource) floatToStereoInt16Locked(inputFrames int) {
	if s.resampleRatio == 1.0 {
		for i := 0; i < opusFrameSize && i < inputFrames; i++ {
			s.pcmSamples[i*2] = floatToInt16(s.pcmFloat[i*2])
			s.pcmSamples[i*2+1] = floatToInt16(s.pcmFloat[i*2+1])
		}
		return
	}

	outputLen := opusFrameSize
	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / s.resampleRatio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		if srcIdx >= inputFrames-1 {
			srcIdx = inputFrames - 2
			frac = 1.0
		}
		if srcIdx < 0 {
			srcIdx = 0
			frac = 0.0
		}
		for ch := 0; ch < 2; ch++ {
			idx0 := srcIdx*2 + ch
			idx1 := (srcIdx+1)*2 + ch
			if idx1 >= len(s.pcmFloat) {
				idx1 = idx0
			}
			v0 := float64(s.pcmFloat[idx0])
			v1 := float64(s.pcmFloat[idx1])
			s.pcmSamples[i*2+ch] = floatToInt16(float32(v0 + frac*(v1-v0)))
		}
	}
}

func floatToInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

func (s *YouTubeSource) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.decoder.Close()
}

func (s *YouTubeSource) Position() int64 {
	return s.position.Load()
}

func (s *YouTubeSource) SeekTo(positionMs int64) error {
	s.decoder.Seek(float64(positionMs) / 1000.0)
	return nil
}

func (s *YouTubeSource) Duration() int64 {
	return int64(s.decoder.Duration() * 1000)
}

func (s *YouTubeSource) CanSeek() bool {
	return true
}
