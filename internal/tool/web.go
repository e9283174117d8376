package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes caps web responses fed back into the conversation.
const maxFetchBytes = 100_000

type webFetch struct {
	client *http.Client
}

func (*webFetch) Name() string        { return "web_fetch" }
func (*webFetch) Description() string { return "Fetch a URL and return the response body as text." }
func (*webFetch) Parameters() map[string]any {
	return objectSchema(map[string]string{"url": "HTTP or HTTPS URL to fetch"}, "url")
}

func (w *webFetch) Run(ctx context.Context, args map[string]any) (string, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported URL scheme: %s", url)
	}

	client := w.client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "stagehand/0.1")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch returned %s", resp.Status)
	}
	return string(body), nil
}
