package export

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/model"
)

// WriteProviders writes one provider record per line.
func WriteProviders(w io.Writer, records []model.ProviderRecord) error {
	return writeNDJSON(w, records)
}

// WriteEvidence writes one evidence record per line.
func WriteEvidence(w io.Writer, records []model.EvidenceRecord) error {
	return writeNDJSON(w, records)
}

func writeNDJSON[T any](w io.Writer, records []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return eris.Wrapf(err, "export: encode line %d", i+1)
		}
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "export: flush ndjson")
	}
	return nil
}
