package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// Values carries already-typed field values keyed by field name.
type Values map[string]interface{}

// Reference selects the target of a reference field through one of the target's
// unique combinations instead of a raw identifier.
type Reference struct {
	Combination int    `json:"combination"`
	Key         Values `json:"key"`
}

// referenceFrom accepts a Reference or its decoded JSON form.
func referenceFrom(v interface{}) (Reference, bool) {
	switch ref := v.(type) {
	case Reference:
		return ref, true
	case *Reference:
		if ref == nil {
			return Reference{}, false
		}
		return *ref, true
	}
	m, ok := models.AsMap(v)
	if !ok {
		return Reference{}, false
	}
	key, ok := models.AsMap(m["key"])
	if !ok {
		return Reference{}, false
	}
	combo, err := toInt(m["combination"])
	if err != nil {
		return Reference{}, false
	}
	return Reference{Combination: combo, Key: Values(key)}, true
}

// toInt coerces the numeric shapes produced by drivers, JSON decoding and typed
// callers into an int. Stored integers are 32-bit, so anything wider is refused
// rather than wrapped.
func toInt(v interface{}) (int, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, fmt.Errorf("%v is not a whole number", x)
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return 0, fmt.Errorf("%v is out of range", x)
		}
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a whole number", x.String())
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a whole number", x)
		}
		n = i
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%d is out of range", n)
	}
	return int(n), nil
}

// toObjectID accepts an ObjectID or its hex form.
func toObjectID(v interface{}) (primitive.ObjectID, bool) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, true
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		return oid, err == nil
	default:
		return primitive.NilObjectID, false
	}
}
