package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldID is the store-generated identifier of every document.
const FieldID = "_id"

// Document is a stored record keyed by field name, as handed back by a store.
type Document map[string]interface{}

// ID returns the document identifier.
func (d Document) ID() (primitive.ObjectID, bool) {
	id, ok := d[FieldID].(primitive.ObjectID)
	return id, ok
}

// String returns a string field or "" when absent.
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Int returns an integer field regardless of the numeric width the store used.
func (d Document) Int(field string) (int64, bool) {
	return AsInt(d[field])
}

// Slice returns an array field; a missing field is an empty slice.
func (d Document) Slice(field string) []interface{} {
	items, _ := AsSlice(d[field])
	return items
}

// Clone returns a shallow copy with array fields copied so callers can rewrite them.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if items, ok := AsSlice(v); ok {
			cp := make([]interface{}, len(items))
			copy(cp, items)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Decode converts a document into a typed view through a BSON round trip.
func Decode(doc Document, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

// AsMap normalises the embedded-document shapes produced by the BSON decoder and by
// callers building values by hand.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case primitive.M:
		return map[string]interface{}(m), true
	case Document:
		return map[string]interface{}(m), true
	case primitive.D:
		out := make(map[string]interface{}, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

// AsSlice normalises array values.
func AsSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case primitive.A:
		return []interface{}(s), true
	case []primitive.ObjectID:
		out := make([]interface{}, len(s))
		for i, id := range s {
			out[i] = id
		}
		return out, true
	case []primitive.M:
		out := make([]interface{}, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]interface{}, len(s))
		for i, str := range s {
			out[i] = str
		}
		return out, true
	default:
		return nil, false
	}
}

// AsInt reads any integral numeric value.
func AsInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// Equal compares two stored values: numbers by value, times by instant, documents
// and arrays element-wise.
func Equal(a, b interface{}) bool {
	if ai, ok := AsInt(a); ok {
		bi, ok := AsInt(b)
		return ok && ai == bi
	}
	switch av := a.(type) {
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			return av.Equal(bv)
		case primitive.DateTime:
			return av.Equal(bv.Time())
		}
		return false
	case primitive.DateTime:
		return Equal(av.Time(), b)
	case nil:
		return b == nil
	}
	if am, ok := AsMap(a); ok {
		bm, ok := AsMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if !Equal(v, bm[k]) {
				return false
			}
		}
		return true
	}
	if as, ok := AsSlice(a); ok {
		bs, ok := AsSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return false
}
