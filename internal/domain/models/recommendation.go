package models

import (
	"bytes"
	"encoding/json"
	"sort"
)

// ChainSnapshot is the options-analytics shortlist for one request. Never interpreted, only forwarded.
type ChainSnapshot json.RawMessage

func (c ChainSnapshot) MarshalJSON() ([]byte, error) { return rawOrNull(c), nil }

// SignalSnapshot is the per-symbol signal layers (sentiment, indicators, congress, macro).
type SignalSnapshot json.RawMessage

func (s SignalSnapshot) MarshalJSON() ([]byte, error) { return rawOrNull(s), nil }

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

type Decision struct {
	Direction string `json:"direction"` // "CALL" | "PUT"
	Strategy  string `json:"strategy"`
}

type Position struct {
	Contracts  float64  `json:"contracts"`
	Notional   float64  `json:"notional"`
	EstMaxLoss *float64 `json:"est_max_loss,omitempty"`
}

// RawRecommendation is the recommender output. Contracts are pass-through.
type RawRecommendation struct {
	Decision   Decision          `json:"decision"`
	Contracts  []json.RawMessage `json:"contracts"`
	Position   Position          `json:"position"`
	Confidence float64           `json:"confidence"`
	Disclosure *string           `json:"disclosure,omitempty"`
}

// Rationale is open: members beyond summary, layers and compliance are kept in Extra and written
// back after the known ones, in key order.
type Rationale struct {
	Summary    string                     `json:"summary"`
	Layers     json.RawMessage            `json:"layers"`
	Compliance json.RawMessage            `json:"compliance,omitempty"`
	Extra      map[string]json.RawMessage `json:"-"`
}

type rationaleFields struct {
	Summary    string          `json:"summary"`
	Layers     json.RawMessage `json:"layers"`
	Compliance json.RawMessage `json:"compliance,omitempty"`
}

func (r *Rationale) UnmarshalJSON(b []byte) error {
	var known rationaleFields
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	delete(all, "summary")
	delete(all, "layers")
	delete(all, "compliance")
	*r = Rationale{Summary: known.Summary, Layers: known.Layers, Compliance: known.Compliance}
	if len(all) > 0 {
		r.Extra = all
	}
	return nil
}

func (r Rationale) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(rationaleFields{Summary: r.Summary, Layers: r.Layers, Compliance: r.Compliance})
	if err != nil || len(r.Extra) == 0 {
		return b, err
	}
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		if err := json.Compact(&buf, rawOrNull(r.Extra[k])); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PlaceholderSummary is returned in place of a generated rationale when enrichment is off or failed.
const PlaceholderSummary = "RAG disabled"

func PlaceholderRationale() Rationale {
	return Rationale{Summary: PlaceholderSummary, Layers: json.RawMessage(`{}`)}
}

// MergedRecommendation is the only value returned to callers. Field order is fixed by the struct,
// so two merges of identical inputs serialize to identical bytes.
type MergedRecommendation struct {
	RawRecommendation
	Rationale Rationale `json:"rationale"`
}

// ScorePayload is the body sent to the recommender.
type ScorePayload struct {
	UserID        string                `json:"user_id"`
	ChainSnapshot ChainSnapshot         `json:"chain_snapshot"`
	Signals       SignalSnapshot        `json:"signals"`
	Request       RecommendationRequest `json:"request"`
	MarketDataURL string                `json:"market_data_url,omitempty"`
}

// RationalePayload is the body sent to the AI orchestrator.
type RationalePayload struct {
	UserID         string             `json:"user_id"`
	Symbol         string             `json:"symbol"`
	Recommendation *RawRecommendation `json:"recommendation"`
	Signals        SignalSnapshot     `json:"signals"`
}
