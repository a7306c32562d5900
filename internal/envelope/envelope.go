// Package envelope stamps run identity onto every emitted record.
package envelope

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/model"
)

// Builder creates one RunEnvelope per run.
type Builder struct {
	schemaVersion int
	newID         func() string
	now           func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithIDGenerator replaces the uuid v4 run id source.
func WithIDGenerator(fn func() string) Option {
	return func(b *Builder) { b.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(b *Builder) { b.now = fn }
}

// NewBuilder returns a Builder for the given schema version.
func NewBuilder(schemaVersion int, opts ...Option) (*Builder, error) {
	if schemaVersion < 1 {
		return nil, eris.Errorf("envelope: schema_version must be >= 1, got %d", schemaVersion)
	}
	b := &Builder{
		schemaVersion: schemaVersion,
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// New returns the envelope for a fresh run. The timestamp is taken once and
// shared by every record of the run.
func (b *Builder) New(tag, rulesHash string) model.RunEnvelope {
	return model.RunEnvelope{
		RunID:           b.newID(),
		SchemaVersion:   b.schemaVersion,
		Tag:             tag,
		RunTimestampUTC: b.now().UTC().Truncate(time.Millisecond),
		RulesHash:       rulesHash,
	}
}

// Provider stamps a redacted provider.
func Provider(env model.RunEnvelope, p model.Provider, r model.Redaction) model.ProviderRecord {
	return model.ProviderRecord{Provider: p, Redaction: r, Run: env}
}

// Evidence stamps a redacted evidence item.
func Evidence(env model.RunEnvelope, e model.EvidenceItem, r model.Redaction) model.EvidenceRecord {
	return model.EvidenceRecord{EvidenceItem: e, Redaction: r, Run: env}
}
