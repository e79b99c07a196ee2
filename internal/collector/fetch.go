package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"pubdigest/internal/config"
	"pubdigest/internal/retry"
)

const maxBodySize = 32 << 20

// fetcher performs GET requests with retry, shared by the remote collectors.
type fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBody    int64
	policy     retry.Policy
	logger     *slog.Logger
}

func newFetcher(cfg config.HTTPClientConfig, logger *slog.Logger) *fetcher {
	return &fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		maxBody:   maxBodySize,
		policy:    retry.FromConfig(cfg.Retry),
		logger:    logger,
	}
}

func (f *fetcher) get(ctx context.Context, url, accept string) ([]byte, error) {
	var body []byte

	err := f.policy.Do(ctx, f.logger.With("url", url), func(ctx context.Context) error {
		var err error
		body, err = f.doRequest(ctx, url, accept)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}

func (f *fetcher) doRequest(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, retry.Permanent(fmt.Errorf("response body exceeds %d bytes", f.maxBody))
	}
	return body, nil
}
