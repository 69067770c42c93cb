package model

import "time"

// Meta carries provenance for one record as it moves between steps.
type Meta struct {
	SourceID        string     `json:"sourceId,omitempty"`
	SourceTimestamp *time.Time `json:"sourceTimestamp,omitempty"`
	Sequence        int64      `json:"sequence"`
}

// Envelope is the unit of data flow between pipeline steps: a dynamic
// record body plus metadata. Step implementations must only ever exchange
// envelopes, never raw payloads.
type Envelope struct {
	Data map[string]any `json:"data"`
	Meta Meta           `json:"meta"`
}

// NewEnvelope wraps a record body with a sequence number.
func NewEnvelope(data map[string]any, sequence int64) Envelope {
	if data == nil {
		data = make(map[string]any)
	}
	return Envelope{Data: data, Meta: Meta{Sequence: sequence}}
}

// Clone returns a shallow copy of the envelope with a copied top-level
// data map, so a transform can rewrite fields without aliasing the
// upstream batch.
func (e Envelope) Clone() Envelope {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	return Envelope{Data: data, Meta: e.Meta}
}

// Field reads a top-level field, supporting one level of dotted access
// into nested maps ("dimensions.width").
func (e Envelope) Field(name string) (any, bool) {
	if v, ok := e.Data[name]; ok {
		return v, true
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			outer, ok := e.Data[name[:i]]
			if !ok {
				return nil, false
			}
			nested, ok := outer.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := nested[name[i+1:]]
			return v, ok
		}
	}
	return nil, false
}
