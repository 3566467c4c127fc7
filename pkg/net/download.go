package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "loanrisk/1 (+https://github.com/mchmarny/loanrisk)"

	// artifacts are small JSON documents; anything larger is not one
	maxDownloadBytes = 64 << 20
)

var (
	reqTransport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    false,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}

	ErrorURLNotFound = errors.New("URL not found")
	ErrorTooLarge    = errors.New("download exceeds size limit")
)

func getResp(ctx context.Context, c *http.Client, url string) (*http.Response, error) {
	if c == nil {
		var err error
		if c, err = GetHTTPClient(); err != nil {
			return nil, fmt.Errorf("error creating HTTP client: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("User-Agent", clientAgent)

	resp, err := c.Do(req) //nolint:gosec // URL comes from config or an explicit flag
	if err != nil {
		return nil, fmt.Errorf("error executing HTTP Get request: %s: %w", url, err)
	}
	PrintHTTPResponse(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrorURLNotFound, url)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}
	return resp, nil
}

// Download writes the content at url to path. The file is written to a
// temporary sibling first and renamed into place only on success.
func Download(ctx context.Context, c *http.Client, url, path string) (retErr error) {
	resp, err := getResp(ctx, c, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer func() {
		if retErr != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	if n > maxDownloadBytes {
		return fmt.Errorf("%w: %s", ErrorTooLarge, url)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(out.Name(), path); err != nil {
		os.Remove(out.Name())
		return fmt.Errorf("error moving download into place: %s: %w", path, err)
	}
	return nil
}
