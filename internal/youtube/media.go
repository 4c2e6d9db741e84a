package youtube

import (
	"context"
	"fmt"
	"net/url"
)

// ResolveMediaURL returns the direct, playable media URL for v, descrambling
// the signature cipher when the best Opus adaptiveFormat carries one. v must
// come from GetVideo (CanResolveMedia reports false for Search results).
func (r *Resolver) ResolveMediaURL(ctx context.Context, v *VideoData) (string, error) {
	if v.streaming == nil {
		return "", fmt.Errorf("youtube: %s: %w", v.ID, ErrNoAudioFormat)
	}
	format, ok := v.streaming.bestOpusFormat()
	if !ok {
		return "", fmt.Errorf("youtube: %s: %w", v.ID, ErrNoAudioFormat)
	}
	if format.URL != "" {
		return format.URL, nil
	}
	if format.SignatureCipher == "" {
		return "", fmt.Errorf("youtube: %s: %w", v.ID, ErrNoAudioFormat)
	}
	return r.resolveCipher(ctx, v.playerURL, format.SignatureCipher)
}

// resolveCipher parses a signatureCipher query string ("s", "sp", "url"
// fields), mines and applies the player's descrambler to "s", and appends
// the descrambled signature to "url" under the "sp" parameter name.
func (r *Resolver) resolveCipher(ctx context.Context, playerURL, cipher string) (string, error) {
	values, err := url.ParseQuery(cipher)
	if err != nil {
		return "", fmt.Errorf("youtube: parsing signature cipher: %w", err)
	}
	rawURL := values.Get("url")
	sig := values.Get("s")
	spParam := values.Get("sp")
	if rawURL == "" || sig == "" {
		return "", fmt.Errorf("youtube: %w: incomplete signature cipher", ErrDescrambleFailed)
	}
	if spParam == "" {
		spParam = "signature"
	}

	script, err := r.fetchText(ctx, playerURL, "")
	if err != nil {
		return "", fmt.Errorf("youtube: fetching player script: %w", err)
	}
	ops, err := cachedScramblerOps(script)
	if err != nil {
		return "", err
	}
	descrambled := applyScrambler(ops, sig)

	mediaURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("youtube: parsing media url: %w", err)
	}
	q := mediaURL.Query()
	q.Set(spParam, descrambled)
	q.Set("ratebypass", "yes")
	mediaURL.RawQuery = q.Encode()
	return mediaURL.String(), nil
}
