package sparkmagic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamline/emrattach/internal/config"
)

const (
	DefaultTemplateURL = "https://raw.githubusercontent.com/jupyter-incubator/sparkmagic/master/sparkmagic/example_config.json"
	DefaultOutputPath  = "~/.sparkmagic/config.json"

	// Placeholder is the host name in the template replaced by the master
	// address.
	Placeholder = "localhost"
)

var ErrInvalidTemplate = errors.New("template is not valid JSON")

// FetchError is returned when the template cannot be retrieved.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching template %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError is returned when the configuration cannot be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Generator writes a sparkmagic configuration pointing at a cluster.
type Generator struct {
	Source     Source
	OutputPath string
	Logger     *slog.Logger
}

// Render replaces every placeholder in template with addr. It returns the
// rendered bytes and the number of replacements.
func Render(template []byte, addr string) ([]byte, int) {
	s := string(template)
	n := strings.Count(s, Placeholder)
	return []byte(strings.ReplaceAll(s, Placeholder, addr)), n
}

// Generate fetches the template, substitutes addr and writes the result,
// overwriting any existing file. It returns the written path.
func (g *Generator) Generate(ctx context.Context, addr string) (string, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	template, err := g.Source.Fetch(ctx)
	if err != nil {
		return "", &FetchError{Source: g.Source.String(), Err: err}
	}
	if !json.Valid(template) {
		return "", &FetchError{Source: g.Source.String(), Err: ErrInvalidTemplate}
	}

	rendered, n := Render(template, addr)
	if n == 0 {
		logger.Warn("template has no placeholder, writing it unchanged", "source", g.Source.String(), "placeholder", Placeholder)
	}

	path := g.OutputPath
	if path == "" {
		path = DefaultOutputPath
	}
	path = config.ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	logger.Info("sparkmagic config written", "path", path, "address", addr, "replacements", n)
	return path, nil
}
