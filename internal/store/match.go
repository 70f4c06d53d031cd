package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// matches evaluates the subset of the query language the records engine issues:
// equality on dotted paths (descending into arrays), $in, $ne and $exists.
func matches(doc map[string]interface{}, filter bson.M) (bool, error) {
	for path, cond := range filter {
		values := resolvePath(doc, strings.Split(path, "."))
		ok, err := matchCondition(values, cond)
		if err != nil {
			return false, fmt.Errorf("filter on %s: %w", path, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(values []interface{}, cond interface{}) (bool, error) {
	ops, isOps := operatorDoc(cond)
	if !isOps {
		return anyEqual(values, cond), nil
	}
	for op, arg := range ops {
		switch op {
		case "$in":
			options, ok := models.AsSlice(arg)
			if !ok {
				return false, fmt.Errorf("$in needs an array")
			}
			found := false
			for _, o := range options {
				if anyEqual(values, o) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case "$ne":
			if anyEqual(values, arg) {
				return false, nil
			}
		case "$exists":
			want, _ := arg.(bool)
			if (len(values) > 0) != want {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
	}
	return true, nil
}

// operatorDoc reports whether cond is an operator document such as {"$in": [...]}.
func operatorDoc(cond interface{}) (map[string]interface{}, bool) {
	m, ok := models.AsMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// resolvePath collects every value reachable at path. Arrays are traversed, and an
// array found at the leaf contributes both itself and its elements.
func resolvePath(v interface{}, parts []string) []interface{} {
	if len(parts) == 0 {
		if items, ok := models.AsSlice(v); ok {
			return append([]interface{}{v}, items...)
		}
		return []interface{}{v}
	}
	if m, ok := models.AsMap(v); ok {
		next, present := m[parts[0]]
		if !present {
			return nil
		}
		return resolvePath(next, parts[1:])
	}
	if items, ok := models.AsSlice(v); ok {
		var out []interface{}
		for _, item := range items {
			out = append(out, resolvePath(item, parts)...)
		}
		return out
	}
	return nil
}

func anyEqual(values []interface{}, want interface{}) bool {
	if want == nil && len(values) == 0 {
		return true
	}
	for _, v := range values {
		if models.Equal(v, want) {
			return true
		}
	}
	return false
}

// applyUpdate applies $set, $push and $pull to doc in place.
func applyUpdate(doc map[string]interface{}, update bson.M) error {
	for op, arg := range update {
		fields, ok := models.AsMap(arg)
		if !ok {
			return fmt.Errorf("%s needs a document", op)
		}
		for field, value := range fields {
			switch op {
			case "$set":
				if err := setPath(doc, strings.Split(field, "."), normalize(value)); err != nil {
					return err
				}
			case "$push":
				current, present := doc[field]
				items, isArray := models.AsSlice(current)
				if present && current != nil && !isArray {
					return fmt.Errorf("$push target %s is not an array", field)
				}
				next, err := pushItems(items, value)
				if err != nil {
					return fmt.Errorf("$push %s: %w", field, err)
				}
				doc[field] = next
			case "$pull":
				items, isArray := models.AsSlice(doc[field])
				if !isArray {
					continue
				}
				kept := make(primitive.A, 0, len(items))
				for _, item := range items {
					remove, err := pullMatches(item, value)
					if err != nil {
						return err
					}
					if !remove {
						kept = append(kept, item)
					}
				}
				doc[field] = kept
			default:
				return fmt.Errorf("unsupported update operator %s", op)
			}
		}
	}
	return nil
}

// pushItems appends value to items. A {$each, $position} modifier document inserts
// every element of $each at $position, counting from the end when negative.
func pushItems(items []interface{}, value interface{}) (primitive.A, error) {
	insert := []interface{}{value}
	at := len(items)
	if mods, ok := models.AsMap(value); ok {
		if each, hasEach := mods["$each"]; hasEach {
			elems, isArray := models.AsSlice(each)
			if !isArray {
				return nil, fmt.Errorf("$each needs an array")
			}
			insert = elems
			if raw, hasPos := mods["$position"]; hasPos {
				pos, ok := number(raw)
				if !ok || pos != float64(int(pos)) {
					return nil, fmt.Errorf("$position needs an integer")
				}
				at = int(pos)
				if at < 0 {
					at += len(items)
				}
				if at < 0 {
					at = 0
				}
				if at > len(items) {
					at = len(items)
				}
			}
		}
	}
	next := make(primitive.A, 0, len(items)+len(insert))
	next = append(next, items[:at]...)
	for _, v := range insert {
		next = append(next, normalize(v))
	}
	return append(next, items[at:]...), nil
}

// pullMatches applies a $pull condition: documents are matched as a query against
// embedded elements, anything else by equality.
func pullMatches(item, cond interface{}) (bool, error) {
	if query, ok := models.AsMap(cond); ok {
		if _, isOps := operatorDoc(cond); isOps {
			return matchCondition([]interface{}{item}, cond)
		}
		elem, isDoc := models.AsMap(item)
		if !isDoc {
			return false, nil
		}
		return matches(elem, bson.M(query))
	}
	return models.Equal(item, cond), nil
}

func setPath(doc map[string]interface{}, parts []string, value interface{}) error {
	if len(parts) == 1 {
		doc[parts[0]] = value
		return nil
	}
	child, ok := models.AsMap(doc[parts[0]])
	if !ok {
		if doc[parts[0]] != nil {
			return fmt.Errorf("$set path %s crosses a non-document", parts[0])
		}
		child = bson.M{}
		doc[parts[0]] = child
	}
	return setPath(child, parts[1:], value)
}

// normalize copies v into the shapes the MongoDB driver decodes into: bson.M,
// primitive.A, int32/int64 and primitive.DateTime.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			return int32(val)
		}
		return int64(val)
	case time.Time:
		return primitive.NewDateTimeFromTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return primitive.NewDateTimeFromTime(*val)
	}
	if m, ok := models.AsMap(v); ok {
		out := make(bson.M, len(m))
		for k, item := range m {
			out[k] = normalize(item)
		}
		return out
	}
	if items, ok := models.AsSlice(v); ok {
		out := make(primitive.A, len(items))
		for i, item := range items {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}
