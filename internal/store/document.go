package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/model"
)

// providerRow is the column projection of a provider record. The full record
// is kept as a JSON document next to the indexed columns.
type providerRow struct {
	RunID           string
	ID              string
	Tag             string
	RiskTier        string
	Status          string
	FraudScore      float64
	LegitimacyScore float64
	State           string
	County          string
	City            string
	Document        []byte
}

func newProviderRow(r model.ProviderRecord) (providerRow, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return providerRow{}, eris.Wrapf(err, "store: marshal provider %s", r.ID)
	}
	return providerRow{
		RunID:           r.Run.RunID,
		ID:              r.ID,
		Tag:             r.Run.Tag,
		RiskTier:        string(r.RiskTier),
		Status:          string(r.Status),
		FraudScore:      r.FraudScore,
		LegitimacyScore: r.LegitimacyScore,
		State:           r.State,
		County:          r.County,
		City:            r.City,
		Document:        doc,
	}, nil
}

func (p providerRow) values() []any {
	return []any{p.RunID, p.ID, p.Tag, p.RiskTier, p.Status, p.FraudScore, p.LegitimacyScore, p.State, p.County, p.City, p.Document}
}

var providerColumns = []string{"run_id", "id", "tag", "risk_tier", "status", "fraud_score", "legitimacy_score", "state", "county", "city", "document"}

type evidenceRow struct {
	RunID      string
	ID         string
	ProviderID string
	SourceType string
	Label      string
	Document   []byte
}

func newEvidenceRow(r model.EvidenceRecord) (evidenceRow, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return evidenceRow{}, eris.Wrapf(err, "store: marshal evidence %s", r.ID)
	}
	return evidenceRow{
		RunID:      r.Run.RunID,
		ID:         r.ID,
		ProviderID: r.ProviderID,
		SourceType: string(r.SourceType),
		Label:      r.Label,
		Document:   doc,
	}, nil
}

func (e evidenceRow) values() []any {
	return []any{e.RunID, e.ID, e.ProviderID, e.SourceType, e.Label, e.Document}
}

var evidenceColumns = []string{"run_id", "id", "provider_id", "source_type", "label", "document"}

func validateRecordKeys(runID, id, kind string) error {
	if runID == "" || id == "" {
		return eris.Errorf("store: %s record needs run_id and id", kind)
	}
	return nil
}

// providerValues validates and encodes records into upsert rows in
// providerColumns order. textDoc stores the document as a string.
func providerValues(records []model.ProviderRecord, textDoc bool) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if err := validateRecordKeys(r.Run.RunID, r.ID, "provider"); err != nil {
			return nil, err
		}
		row, err := newProviderRow(r)
		if err != nil {
			return nil, err
		}
		v := row.values()
		if textDoc {
			v[len(v)-1] = string(row.Document)
		}
		rows = append(rows, v)
	}
	return rows, nil
}

func evidenceValues(records []model.EvidenceRecord, textDoc bool) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if err := validateRecordKeys(r.Run.RunID, r.ID, "evidence"); err != nil {
			return nil, err
		}
		row, err := newEvidenceRow(r)
		if err != nil {
			return nil, err
		}
		v := row.values()
		if textDoc {
			v[len(v)-1] = string(row.Document)
		}
		rows = append(rows, v)
	}
	return rows, nil
}

// checkRunRecords rejects records that belong to a different run than the
// one being saved.
func checkRunRecords(res RunRecords) error {
	if res.Run.RunID == "" {
		return eris.New("store: run needs run_id")
	}
	for _, p := range res.Providers {
		if p.Run.RunID != res.Run.RunID {
			return eris.Errorf("store: provider %s belongs to run %q, not %q", p.ID, p.Run.RunID, res.Run.RunID)
		}
	}
	for _, e := range res.Evidence {
		if e.Run.RunID != res.Run.RunID {
			return eris.Errorf("store: evidence %s belongs to run %q, not %q", e.ID, e.Run.RunID, res.Run.RunID)
		}
	}
	return nil
}

func decodeProvider(doc []byte) (model.ProviderRecord, error) {
	var r model.ProviderRecord
	if err := json.Unmarshal(doc, &r); err != nil {
		return model.ProviderRecord{}, eris.Wrap(err, "store: unmarshal provider")
	}
	return r, nil
}

func encodeSummary(s model.RunSummary) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal summary")
	}
	return b, nil
}

func decodeSummary(b []byte, into *model.RunSummary) error {
	if len(b) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(b, into), "store: unmarshal summary")
}
