package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/engine"
	"github.com/sells-group/provider-screen/internal/model"
)

// Output file names.
const (
	FileRun               = "run.json"
	FileProvidersAll      = "providers_all.ndjson"
	FileProvidersHighRisk = "providers_high_risk.ndjson"
	FileEvidence          = "evidence.ndjson"
	FileSummaryCSV        = "providers_summary.csv"
)

// GroupedFile returns the grouped JSON file name for a status.
func GroupedFile(st model.Status) string {
	return string(st) + ".json"
}

// Manifest describes the files written for a run.
type Manifest struct {
	Dir      string         `json:"dir"`
	Files    []string       `json:"files"`
	Counts   map[string]int `json:"counts"`
	HighRisk int            `json:"high_risk"`
}

// Writer writes run results into a directory.
type Writer struct {
	cfg    config.ExportConfig
	filter Filter
}

const stagingPrefix = ".staging-"

// NewWriter builds a Writer from export settings.
func NewWriter(cfg config.ExportConfig) (*Writer, error) {
	if cfg.OutputDir == "" {
		return nil, eris.New("export: output_dir is required")
	}
	f, err := FilterFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, filter: f}, nil
}

// Filter returns the configured record filter.
func (w *Writer) Filter() Filter { return w.filter }

// WriteRun writes every enabled output for res. The status filter applies to
// all provider files; the score and tier filter selects the high-risk file,
// which is only written when something matches.
//
// Files are staged in a hidden directory under the output dir and renamed
// into place once all of them are written. A failed run leaves the output
// dir as it was.
func (w *Writer) WriteRun(res *engine.Result) (*Manifest, error) {
	if res == nil {
		return nil, eris.New("export: nil result")
	}
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}
	staging, err := os.MkdirTemp(w.cfg.OutputDir, stagingPrefix)
	if err != nil {
		return nil, eris.Wrap(err, "export: create staging dir")
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	m := &Manifest{Dir: w.cfg.OutputDir, Counts: map[string]int{}}
	meta := res.Document()
	providers := w.filter.StatusOnly().Apply(res.Providers)

	if err := w.writeFile(staging, m, FileRun, len(providers), func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(meta), "export: encode run")
	}); err != nil {
		return nil, err
	}

	if w.cfg.GroupedJSON {
		for _, st := range model.AllStatuses() {
			group := Filter{Statuses: []model.Status{st}}.Apply(providers)
			if err := w.writeFile(staging, m, GroupedFile(st), len(group), func(out io.Writer) error {
				return WriteGrouped(out, meta, group)
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := w.writeFile(staging, m, FileProvidersAll, len(providers), func(out io.Writer) error {
		return WriteProviders(out, providers)
	}); err != nil {
		return nil, err
	}

	if w.filter.HighRisk() {
		high := ByFraudScore(w.filter.Apply(res.Providers))
		m.HighRisk = len(high)
		if len(high) > 0 {
			if err := w.writeFile(staging, m, FileProvidersHighRisk, len(high), func(out io.Writer) error {
				return WriteProviders(out, high)
			}); err != nil {
				return nil, err
			}
		} else {
			zap.L().Info("export: no providers matched the high-risk filter",
				zap.Float64("min_fraud_score", w.filter.MinFraudScore),
				zap.Int("tiers", len(w.filter.Tiers)),
			)
		}
	}

	if err := w.writeFile(staging, m, FileEvidence, len(res.Evidence), func(out io.Writer) error {
		return WriteEvidence(out, res.Evidence)
	}); err != nil {
		return nil, err
	}

	if w.cfg.CSVSummary {
		if err := w.writeFile(staging, m, FileSummaryCSV, len(providers), func(out io.Writer) error {
			return WriteSummaryCSV(out, providers)
		}); err != nil {
			return nil, err
		}
	}

	if err := w.publish(staging, m.Files); err != nil {
		return nil, err
	}

	zap.L().Info("export: run written",
		zap.String("run_id", res.Run.RunID),
		zap.String("dir", m.Dir),
		zap.Int("files", len(m.Files)),
	)
	return m, nil
}

func (w *Writer) writeFile(dir string, m *Manifest, name string, count int, fn func(io.Writer) error) (err error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", name)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "export: close %s", name)
		}
	}()

	if err := fn(f); err != nil {
		return eris.Wrapf(err, "export: write %s", name)
	}

	m.Files = append(m.Files, name)
	m.Counts[name] = count
	zap.L().Debug("export: wrote file", zap.String("path", path), zap.Int("records", count))
	return nil
}

// publish moves staged files into the output dir.
func (w *Writer) publish(staging string, files []string) error {
	for _, name := range files {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(w.cfg.OutputDir, name)); err != nil {
			return eris.Wrapf(err, "export: publish %s", name)
		}
	}
	return nil
}
