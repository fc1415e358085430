// Package bootstrap fills the status and header reference collections the
// first time a store is opened.
package bootstrap

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

//go:embed definitions.json
var defaultDefinitions []byte

// Definitions is the reference data document.
type Definitions struct {
	Codes     []StatusDefinition `json:"codes"`
	Requests  []HeaderDefinition `json:"requests"`
	Responses []HeaderDefinition `json:"responses"`
}

// StatusDefinition describes one status code.
type StatusDefinition struct {
	Key   int    `json:"key"`
	Label string `json:"label"`
	Desc  string `json:"desc"`
}

// HeaderDefinition describes one header name.
type HeaderDefinition struct {
	Key     string `json:"key"`
	Desc    string `json:"desc"`
	Example string `json:"example"`
}

// Parse decodes a definitions document.
func Parse(data []byte) (Definitions, error) {
	var d Definitions
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parsing definitions: %w", err)
	}
	return d, nil
}

// Default returns the definitions compiled into the binary.
func Default() Definitions {
	d, err := Parse(defaultDefinitions)
	if err != nil {
		panic(err)
	}
	return d
}

// Statuses converts the codes to records.
func (d Definitions) Statuses() []types.HTTPStatusRecord {
	out := make([]types.HTTPStatusRecord, 0, len(d.Codes))
	for _, c := range d.Codes {
		out = append(out, types.HTTPStatusRecord{Code: c.Key, Label: c.Label, Description: c.Desc})
	}
	return out
}

// Headers converts request and response headers to records.
func (d Definitions) Headers() []types.HTTPHeaderRecord {
	out := make([]types.HTTPHeaderRecord, 0, len(d.Requests)+len(d.Responses))
	for _, h := range d.Requests {
		out = append(out, types.HTTPHeaderRecord{Name: h.Key, Kind: types.HeaderKindRequest, Description: h.Desc, Example: h.Example})
	}
	for _, h := range d.Responses {
		out = append(out, types.HTTPHeaderRecord{Name: h.Key, Kind: types.HeaderKindResponse, Description: h.Desc, Example: h.Example})
	}
	return out
}

// Loader fetches definitions from the embedded document, a file, or an
// http(s) URL.
type Loader struct {
	source string
	client *http.Client
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// NewLoader returns a Loader for source. An empty source is the embedded
// document.
func NewLoader(source string, opts ...Option) *Loader {
	l := &Loader{source: source, client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and parses the definitions.
func (l *Loader) Load(ctx context.Context) (Definitions, error) {
	switch {
	case l.source == "":
		return Parse(defaultDefinitions)
	case strings.HasPrefix(l.source, "http://"), strings.HasPrefix(l.source, "https://"):
		return l.fetch(ctx)
	default:
		data, err := os.ReadFile(l.source)
		if err != nil {
			return Definitions{}, fmt.Errorf("reading definitions: %w", err)
		}
		return Parse(data)
	}
}

func (l *Loader) fetch(ctx context.Context) (Definitions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
	if err != nil {
		return Definitions{}, fmt.Errorf("building definitions request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Definitions{}, fmt.Errorf("fetching definitions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Definitions{}, fmt.Errorf("fetching definitions: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Definitions{}, fmt.Errorf("reading definitions: %w", err)
	}
	return Parse(data)
}

// EnsurePopulated loads the definitions into an empty statuses collection.
// It reports whether anything was written. A definitions document that
// cannot be loaded is logged and leaves the collections empty; the next
// call tries again.
func EnsurePopulated(ctx context.Context, engine types.Engine, loader *Loader, log *zap.Logger) (bool, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var n int
	err := engine.View(ctx, func(tx types.Tx) error {
		var err error
		n, err = tx.Count(types.CollectionStatuses)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("count statuses: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	defs, err := loader.Load(ctx)
	if err != nil {
		log.Warn("definitions_unavailable", zap.String("source", loader.source), zap.Error(err))
		return false, nil
	}

	var statuses, headers int
	err = engine.Update(ctx, func(tx types.Tx) error {
		statuses, headers = 0, 0
		for _, s := range defs.Statuses() {
			if err := s.Validate(); err != nil {
				log.Warn("status_definition_skipped", zap.Int("code", s.Code), zap.Error(err))
				continue
			}
			if _, err := records.Put(tx, types.CollectionStatuses, s); err != nil {
				return err
			}
			statuses++
		}
		for _, h := range defs.Headers() {
			if err := h.Validate(); err != nil {
				log.Warn("header_definition_skipped", zap.String("name", h.Name), zap.Error(err))
				continue
			}
			if _, err := records.Put(tx, types.CollectionHeaders, h); err != nil {
				return err
			}
			headers++
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("populate reference data: %w", err)
	}
	log.Info("reference_data_populated", zap.Int("statuses", statuses), zap.Int("headers", headers))
	return statuses+headers > 0, nil
}
