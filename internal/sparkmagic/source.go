package sparkmagic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/beamline/emrattach/internal/config"
)

// Source yields the raw configuration template.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// ObjectGetter downloads an object from S3.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// NewSource picks a source for location: http(s) URLs, s3://bucket/key, or
// a local path with an optional file:// prefix. getter may be nil when no
// s3 location is used.
func NewSource(location string, getter ObjectGetter, logger *slog.Logger) (Source, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, logger), nil
	case strings.HasPrefix(location, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 location %q, expected s3://bucket/key", location)
		}
		if getter == nil {
			return nil, fmt.Errorf("no S3 client for %s", location)
		}
		return &S3Source{Bucket: bucket, Key: key, Getter: getter}, nil
	case location == "":
		return nil, fmt.Errorf("empty template location")
	default:
		return &FileSource{Path: config.ExpandHome(strings.TrimPrefix(location, "file://"))}, nil
	}
}

// HTTPSource downloads the template over HTTP with bounded retries.
type HTTPSource struct {
	URL    string
	Client *retryablehttp.Client
}

// NewHTTPSource creates an HTTPSource retrying up to three times.
func NewHTTPSource(url string, logger *slog.Logger) *HTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	// A nil *slog.Logger must not reach the interface field.
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}
	return &HTTPSource{URL: url, Client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPSource) String() string { return s.URL }

// S3Source reads the template from an S3 object.
type S3Source struct {
	Bucket string
	Key    string
	Getter ObjectGetter
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	return s.Getter.GetObject(ctx, s.Bucket, s.Key)
}

func (s *S3Source) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// FileSource reads the template from the local filesystem.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(_ context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

func (s *FileSource) String() string { return s.Path }
