package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentcore-go/agentcore/message"
)

const timeLayout = time.RFC3339Nano

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// entryJSON mirrors Entry field-for-field but gives Message a plain
// json.RawMessage slot, since message.Message already knows how to encode
// and decode its own interface-typed Parts (message.MarshalJSON /
// message.UnmarshalJSON).
type entryJSON struct {
	ID            string          `json:"id"`
	ParentID      string          `json:"parentId,omitempty"`
	Kind          PayloadKind     `json:"kind"`
	Timestamp     string          `json:"timestamp"`
	Message       json.RawMessage `json:"message,omitempty"`
	ThinkingLevel string          `json:"thinkingLevel,omitempty"`
	ModelID       string          `json:"modelId,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Label         string          `json:"label,omitempty"`
	Custom        any             `json:"custom,omitempty"`
}

// EncodeEntry serializes an Entry to JSON bytes, suitable for storage in any
// byte-oriented backend (Redis members, Mongo byte fields, files).
func EncodeEntry(e Entry) ([]byte, error) {
	doc := entryJSON{
		ID:            e.ID,
		ParentID:      e.ParentID,
		Kind:          e.Kind,
		Timestamp:     e.Timestamp.Format(timeLayout),
		ThinkingLevel: e.ThinkingLevel,
		ModelID:       e.ModelID,
		Summary:       e.Summary,
		Label:         e.Label,
		Custom:        e.Custom,
	}
	if e.Message != nil {
		raw, err := json.Marshal(e.Message)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		doc.Message = raw
	}
	return json.Marshal(doc)
}

// DecodeEntry reverses EncodeEntry.
func DecodeEntry(data []byte) (Entry, error) {
	var doc entryJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	e := Entry{
		ID:            doc.ID,
		ParentID:      doc.ParentID,
		Kind:          doc.Kind,
		ThinkingLevel: doc.ThinkingLevel,
		ModelID:       doc.ModelID,
		Summary:       doc.Summary,
		Label:         doc.Label,
		Custom:        doc.Custom,
	}
	if doc.Timestamp != "" {
		ts, err := parseTimestamp(doc.Timestamp)
		if err != nil {
			return Entry{}, fmt.Errorf("decode timestamp: %w", err)
		}
		e.Timestamp = ts
	}
	if len(doc.Message) > 0 {
		var m message.Message
		if err := json.Unmarshal(doc.Message, &m); err != nil {
			return Entry{}, fmt.Errorf("decode message: %w", err)
		}
		e.Message = &m
	}
	return e, nil
}
