package timeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// documentEvent accepts both the short field names and the
// phoneme/start_time/end_time spelling used by older exports.
type documentEvent struct {
	Symbol     string   `json:"symbol,omitempty"`
	Phoneme    string   `json:"phoneme,omitempty"`
	Start      *float64 `json:"start,omitempty"`
	StartTime  *float64 `json:"start_time,omitempty"`
	End        *float64 `json:"end,omitempty"`
	EndTime    *float64 `json:"end_time,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type document struct {
	Events     []documentEvent   `json:"events,omitempty"`
	Phonemes   []documentEvent   `json:"phonemes,omitempty"`
	Duration   float64           `json:"duration"`
	SampleRate int               `json:"sample_rate"`
	SymbolSet  string            `json:"symbol_set,omitempty"`
	PhonemeSet string            `json:"phoneme_set,omitempty"`
	Language   string            `json:"language,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// wireTimeline is the canonical encoding written by MarshalJSON.
type wireTimeline struct {
	Events     []PhonemeEvent    `json:"events"`
	Duration   float64           `json:"duration"`
	SampleRate int               `json:"sample_rate"`
	SymbolSet  string            `json:"symbol_set,omitempty"`
	Language   string            `json:"language,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON writes the canonical timeline document.
func (t *Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTimeline{
		Events:     t.events,
		Duration:   t.duration,
		SampleRate: t.sampleRate,
		SymbolSet:  t.symbolSet,
		Language:   t.language,
		Metadata:   t.metadata,
	})
}

// UnmarshalJSON decodes and validates a timeline document.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

// Parse decodes a timeline document and validates it.
func Parse(data []byte) (*Timeline, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	raw := doc.Events
	if len(raw) == 0 {
		raw = doc.Phonemes
	}

	events := make([]PhonemeEvent, 0, len(raw))
	for i, de := range raw {
		ev, err := de.toEvent()
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrInvalid, i, err)
		}
		events = append(events, ev)
	}

	symbolSet := doc.SymbolSet
	if symbolSet == "" {
		symbolSet = doc.PhonemeSet
	}

	return New(events, Meta{
		Duration:   doc.Duration,
		SampleRate: doc.SampleRate,
		SymbolSet:  symbolSet,
		Language:   doc.Language,
		Metadata:   doc.Metadata,
	})
}

// Load reads a timeline document from disk.
func Load(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timeline %s: %w", path, err)
	}
	tl, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse timeline %s: %w", path, err)
	}
	return tl, nil
}

func (de documentEvent) toEvent() (PhonemeEvent, error) {
	symbol := de.Symbol
	if symbol == "" {
		symbol = de.Phoneme
	}

	start := de.Start
	if start == nil {
		start = de.StartTime
	}
	end := de.End
	if end == nil {
		end = de.EndTime
	}
	if start == nil || end == nil {
		return PhonemeEvent{}, fmt.Errorf("symbol %q is missing start or end", symbol)
	}

	confidence := 1.0
	if de.Confidence != nil {
		confidence = *de.Confidence
	}

	return PhonemeEvent{
		Symbol:     symbol,
		Start:      *start,
		End:        *end,
		Confidence: confidence,
	}, nil
}
