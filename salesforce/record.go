package salesforce

import "encoding/json"

// FieldMapper is the capability create/update payload types can implement to
// state exactly which fields go on the wire.
type FieldMapper interface {
	FieldMap() map[string]any
}

// Record is a fluent field accumulator for create and update payloads, for
// callers that don't want to declare a struct per write shape.
//
//	rec := salesforce.NewRecord().Set("Name", "Acme").Set("Industry", "Energy")
type Record struct {
	fields map[string]any
}

func NewRecord() *Record {
	return &Record{fields: make(map[string]any)}
}

// Set assigns a field value and returns the record for chaining. Setting the
// same field twice keeps the last value.
func (r *Record) Set(name string, value any) *Record {
	r.fields[name] = value
	return r
}

// FieldMap returns a copy of the accumulated fields.
func (r *Record) FieldMap() map[string]any {
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// marshalRecord serializes a write payload. FieldMapper implementations
// control their own field set; anything else goes through encoding/json,
// which means only exported struct fields are written — unexported fields are
// silently omitted, mirroring what the mapping layer does on read.
func marshalRecord(record any) ([]byte, error) {
	if fm, ok := record.(FieldMapper); ok {
		return json.Marshal(fm.FieldMap())
	}
	return json.Marshal(record)
}
