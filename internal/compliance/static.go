package compliance

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stockrun/stockrun/internal/models"
)

// StaticEntry is one manually curated verdict.
type StaticEntry struct {
	Compliant bool   `yaml:"compliant"`
	Reason    string `yaml:"reason,omitempty"`
	Detail    string `yaml:"detail,omitempty"`
}

// StaticTable is the locally curated override table. It sits last in the
// source precedence chain, before the default-exclude fallback.
//
// YAML shape:
//
//	entries:
//	  AAPL: { compliant: true }
//	  LVS:  { compliant: false, reason: GAMBLING, detail: "casino operator" }
type StaticTable struct {
	entries map[string]StaticEntry
}

// NewStaticTable builds a table from entries keyed by normalized ticker.
func NewStaticTable(entries map[string]StaticEntry) *StaticTable {
	if entries == nil {
		entries = make(map[string]StaticEntry)
	}
	return &StaticTable{entries: entries}
}

// NewStaticTableFromFile loads the table from a YAML file.
func NewStaticTableFromFile(path string) (*StaticTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading static compliance table: %w", err)
	}
	var doc struct {
		Entries map[string]StaticEntry `yaml:"entries"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing static compliance table %s: %w", path, err)
	}
	return NewStaticTable(doc.Entries), nil
}

func (t *StaticTable) Name() string { return "static" }

// Check looks up the ticker; absent entries are unknown. Curated entries
// carry full confidence.
func (t *StaticTable) Check(_ context.Context, ticker string) (Verdict, error) {
	entry, ok := t.entries[ticker]
	if !ok {
		return Verdict{Result: VerdictUnknown}, nil
	}
	if entry.Compliant {
		return Verdict{Result: VerdictCompliant, Confidence: 1.0}, nil
	}
	reason := models.ReasonCode(entry.Reason)
	if reason == models.ReasonNone {
		reason = models.ReasonManual
	}
	return Verdict{
		Result:     VerdictNonCompliant,
		Confidence: 1.0,
		Reason:     reason,
		Detail:     entry.Detail,
	}, nil
}
