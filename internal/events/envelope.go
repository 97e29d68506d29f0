package events

import (
	"bytes"
	"encoding/json"

	"github.com/stepherg/sonosgw/internal/discovery"
)

// Default envelope field names.
const (
	DefaultTypeField = "type"
	DefaultDataField = "data"
)

// Envelope is one notification as delivered to a sink:
// {<TypeField>: kind, <DataField>: payload}.
type Envelope struct {
	TypeField string
	DataField string
	Kind      discovery.EventKind
	Data      any
}

// MarshalJSON writes the type field first, then the data field.
func (e Envelope) MarshalJSON() ([]byte, error) {
	typeField, dataField := e.TypeField, e.DataField
	if typeField == "" {
		typeField = DefaultTypeField
	}
	if dataField == "" {
		dataField = DefaultDataField
	}
	parts := make([][]byte, 4)
	var err error
	for i, v := range []any{typeField, e.Kind, dataField, e.Data} {
		if parts[i], err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(parts[0])
	buf.WriteByte(':')
	buf.Write(parts[1])
	buf.WriteByte(',')
	buf.Write(parts[2])
	buf.WriteByte(':')
	buf.Write(parts[3])
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
