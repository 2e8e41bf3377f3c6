package model

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aqicast/aqicast/internal/resilience"
)

// Source loads a bundle from somewhere.
type Source interface {
	Load(ctx context.Context) (*Bundle, error)
	String() string
}

// FileSource loads an artifact from the local filesystem.
type FileSource struct {
	Path string
}

// Load reads and builds the artifact.
func (s FileSource) Load(_ context.Context) (*Bundle, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer f.Close()

	bundle, err := DecodeArtifact(f)
	if err != nil {
		return nil, err
	}
	bundle.Source = s.String()
	return bundle, nil
}

func (s FileSource) String() string {
	return "file:" + s.Path
}

// HTTPSource fetches an artifact over HTTP through a resilient client.
type HTTPSource struct {
	URL    string
	Client *resilience.Client
}

// Load fetches and builds the artifact.
func (s HTTPSource) Load(ctx context.Context) (*Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrModelUnavailable, s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: status %d", ErrModelUnavailable, s.URL, resp.StatusCode)
	}

	bundle, err := DecodeArtifact(resp.Body)
	if err != nil {
		return nil, err
	}
	bundle.Source = s.String()
	return bundle, nil
}

func (s HTTPSource) String() string {
	return s.URL
}
