package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strconv"
	"strings"
)

// Renderer and parser names accepted in REST settings.
const (
	FormatJSON = "json"
)

var (
	// ErrUnknownRenderer is returned for renderer names that are not built in.
	ErrUnknownRenderer = errors.New("unknown renderer")
	// ErrUnknownParser is returned for parser names that are not built in.
	ErrUnknownParser = errors.New("unknown parser")

	errNotAcceptable    = errors.New("not acceptable")
	errUnsupportedMedia = errors.New("unsupported media type")
)

// Renderer encodes response payloads.
type Renderer interface {
	MediaType() string
	Render(w io.Writer, payload any) error
}

// Parser decodes request bodies.
type Parser interface {
	MediaType() string
	Parse(r io.Reader, dst any) error
}

type jsonRenderer struct{}

func (jsonRenderer) MediaType() string { return "application/json" }

func (jsonRenderer) Render(w io.Writer, payload any) error {
	return json.NewEncoder(w).Encode(payload)
}

type jsonParser struct{}

func (jsonParser) MediaType() string { return "application/json" }

func (jsonParser) Parse(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

var renderers = map[string]Renderer{FormatJSON: jsonRenderer{}}

var parsers = map[string]Parser{FormatJSON: jsonParser{}}

// RendererNames lists the supported renderers.
func RendererNames() []string {
	return sortedKeys(renderers)
}

// ParserNames lists the supported parsers.
func ParserNames() []string {
	return sortedKeys(parsers)
}

func resolveRenderers(names []string) ([]Renderer, error) {
	out := make([]Renderer, 0, len(names))
	for _, name := range names {
		r, ok := renderers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRenderer, name)
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrUnknownRenderer)
	}
	return out, nil
}

func resolveParsers(names []string) ([]Parser, error) {
	out := make([]Parser, 0, len(names))
	for _, name := range names {
		p, ok := parsers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParser, name)
		}
		out = append(out, p)
	}
	return out, nil
}

// selectRenderer honours the Accept header; the first configured renderer is
// the default for missing or wildcard ranges.
func selectRenderer(accept string, available []Renderer) (Renderer, error) {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return available[0], nil
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok {
			weight, err := strconv.ParseFloat(strings.TrimSpace(q), 64)
			if err != nil || weight <= 0 {
				continue
			}
		}
		for _, r := range available {
			if mediaMatches(mediaType, r.MediaType()) {
				return r, nil
			}
		}
	}
	return nil, errNotAcceptable
}

func mediaMatches(pattern, mediaType string) bool {
	if pattern == "*/*" || pattern == mediaType {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(mediaType, prefix+"/")
	}
	return false
}

// selectParser picks the parser for the request Content-Type.
func selectParser(contentType string, available []Parser) (Parser, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, errUnsupportedMedia
	}
	for _, p := range available {
		if p.MediaType() == mediaType {
			return p, nil
		}
	}
	return nil, errUnsupportedMedia
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
