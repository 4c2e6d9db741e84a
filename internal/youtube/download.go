package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadToCache streams mediaURL into destDir/<id>.webm, writing to a
// "<id>.webm.part" temp file first and renaming into place only once the
// full body has landed, so a reader polling destDir never observes a
// partially written file. ctx cancellation leaves the .part file behind
// for the next attempt to overwrite.
func (r *Resolver) DownloadToCache(ctx context.Context, mediaURL, id, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("youtube: creating cache dir: %w", err)
	}

	finalPath := filepath.Join(destDir, id+".webm")
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	partPath := finalPath + ".part"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("youtube: building download request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube: download request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("youtube: unexpected status %d downloading %s", resp.StatusCode, id)
	}

	out, err := os.Create(partPath)
	if err != nil {
		return "", fmt.Errorf("youtube: creating cache file: %w", err)
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("youtube: writing cache file: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("youtube: closing cache file: %w", closeErr)
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("youtube: finalizing cache file: %w", err)
	}

	r.logger.Info("cached video", slog.String("id", id), slog.Int64("bytes", written))
	return finalPath, nil
}
