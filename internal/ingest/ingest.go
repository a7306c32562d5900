// Package ingest reads newline-delimited JSON providers and evidence, checking
// every line against a JSON Schema before decoding it.
package ingest

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/sells-group/provider-screen/internal/model"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	providerSchemaURL = "https://provider-screen.local/schema/provider.schema.json"
	evidenceSchemaURL = "https://provider-screen.local/schema/evidence.schema.json"
	maxLineBytes      = 4 << 20
)

// LineError reports a rejected input line.
type LineError struct {
	Source string
	Line   int
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("ingest: %s line %d: %v", e.Source, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Reader validates and decodes NDJSON input.
type Reader struct {
	provider *jsonschema.Schema
	evidence *jsonschema.Schema
}

// NewReader compiles the embedded schemas.
func NewReader() (*Reader, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	for url, file := range map[string]string{
		providerSchemaURL: "schema/provider.schema.json",
		evidenceSchemaURL: "schema/evidence.schema.json",
	} {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", file)
		}
		if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, eris.Wrapf(err, "ingest: load %s", file)
		}
	}

	prov, err := c.Compile(providerSchemaURL)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: compile provider schema")
	}
	ev, err := c.Compile(evidenceSchemaURL)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: compile evidence schema")
	}
	return &Reader{provider: prov, evidence: ev}, nil
}

// Providers decodes one provider per line. Blank lines are skipped.
func (r *Reader) Providers(in io.Reader, source string) ([]model.Provider, error) {
	var out []model.Provider
	err := eachLine(in, source, func(line []byte) error {
		if err := validate(r.provider, line); err != nil {
			return err
		}
		var p model.Provider
		if err := json.Unmarshal(line, &p); err != nil {
			return eris.Wrap(err, "decode provider")
		}
		if p.Signals == nil {
			p.Signals = model.Signals{}
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ingest: read providers", zap.String("source", source), zap.Int("count", len(out)))
	return out, nil
}

// Evidence decodes one evidence item per line. Blank lines are skipped.
func (r *Reader) Evidence(in io.Reader, source string) ([]model.EvidenceItem, error) {
	var out []model.EvidenceItem
	err := eachLine(in, source, func(line []byte) error {
		if err := validate(r.evidence, line); err != nil {
			return err
		}
		var e model.EvidenceItem
		if err := json.Unmarshal(line, &e); err != nil {
			return eris.Wrap(err, "decode evidence")
		}
		e.TimestampUTC = e.TimestampUTC.UTC()
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ingest: read evidence", zap.String("source", source), zap.Int("count", len(out)))
	return out, nil
}

// ProvidersFile reads providers from path.
func (r *Reader) ProvidersFile(path string) ([]model.Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return r.Providers(f, path)
}

// EvidenceFile reads evidence from path. An empty path yields no evidence.
func (r *Reader) EvidenceFile(path string) ([]model.EvidenceItem, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return r.Evidence(f, path)
}

func eachLine(in io.Reader, source string, fn func([]byte) error) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return &LineError{Source: source, Line: n, Err: err}
		}
	}
	return eris.Wrapf(sc.Err(), "ingest: scan %s", source)
}

func validate(schema *jsonschema.Schema, line []byte) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return eris.Wrap(err, "invalid json")
	}
	return schema.Validate(v)
}
