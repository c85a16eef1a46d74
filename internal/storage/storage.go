// Package storage reads previously uploaded media. A missing file is reported
// as nil bytes with a nil error so callers can degrade instead of failing.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const maxFileSize = 64 << 20

// LocalStore serves files from a directory on disk.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) GetFileContent(ctx context.Context, name string) ([]byte, error) {
	clean := path.Clean("/" + strings.TrimSpace(name))
	if clean == "/" {
		return nil, nil
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))

	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxFileSize))
}

// HTTPStore fetches files from an object storage endpoint or CDN.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPStore(baseURL string, httpClient *http.Client) *HTTPStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPStore{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (s *HTTPStore) GetFileContent(ctx context.Context, name string) ([]byte, error) {
	target := name
	if !strings.HasPrefix(name, "http://") && !strings.HasPrefix(name, "https://") {
		target = s.baseURL + "/" + strings.TrimLeft((&url.URL{Path: name}).EscapedPath(), "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("storage GET %s: status %d", name, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
}
