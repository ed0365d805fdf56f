package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// SourceFetcher retrieves a raw host database document.
type SourceFetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Options parameterise the fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// Fetcher reads host dumps from local files or over HTTP from a running host.
type Fetcher struct {
	opts   Options
	logger zerolog.Logger
	client *resty.Client
}

// New constructs a fetcher.
func New(opts Options, logger zerolog.Logger) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "dynamicflea/1.0"
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Fetcher{
		opts:   opts,
		logger: logger.With().Str("component", "source_fetcher").Logger(),
		client: client,
	}
}

// Fetch returns the document at location, which is either an http(s) URL or
// a filesystem path.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, errors.New("source location is empty")
	}
	if isRemote(location) {
		return f.fetchRemote(ctx, location)
	}

	body, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	f.logger.Debug().Str("path", location).Int("bytes", len(body)).Msg("source read from disk")
	return body, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, parseHTTPError(resp.StatusCode(), resp.Body())
	}

	body := resp.Body()
	f.logger.Debug().Str("url", url).Int("bytes", len(body)).Dur("took", resp.Time()).Msg("source fetched")
	return body, nil
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type errorResponse struct {
	Err     string `json:"err"`
	ErrMsg  string `json:"errmsg"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.ErrMsg != "" {
			return fmt.Errorf("host error (%d): %s", status, apiErr.ErrMsg)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("host error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Err != "" {
			return fmt.Errorf("host error (%d): %s", status, apiErr.Err)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("host error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("host error (%d)", status)
}

var _ SourceFetcher = (*Fetcher)(nil)
