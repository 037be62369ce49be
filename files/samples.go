package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

const (
	sampleFetchTimeout = 30 * time.Second
	// maxSampleSize caps a single sample download.
	maxSampleSize = 10 << 20
)

// FetchSamples downloads the configured sample documents and converts them
// into the same representation manual uploads use. One bad URL fails the
// whole fetch; the sample set is fixed and small, so a partial set would only
// confuse.
func FetchSamples(ctx context.Context, urls []string) ([]InputFile, error) {
	client := &http.Client{Timeout: sampleFetchTimeout}

	samples := make([]InputFile, 0, len(urls))
	for _, rawURL := range urls {
		file, err := fetchSample(ctx, client, rawURL)
		if err != nil {
			return nil, fmt.Errorf("fetch sample %s: %w", rawURL, err)
		}
		samples = append(samples, file)
	}
	return samples, nil
}

func fetchSample(ctx context.Context, client *http.Client, rawURL string) (InputFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return InputFile{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return InputFile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return InputFile{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSampleSize+1))
	if err != nil {
		return InputFile{}, err
	}
	if len(data) > maxSampleSize {
		return InputFile{}, fmt.Errorf("sample exceeds %d bytes", maxSampleSize)
	}

	return New(sampleName(rawURL), data)
}

// sampleName derives a display name from the URL path, defaulting to a .txt
// name when the path gives no usable one.
func sampleName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "sample.txt"
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "sample.txt"
	}
	if DetectFormat(name) == FormatUnknown {
		name += ".txt"
	}
	return name
}
