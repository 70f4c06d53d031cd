package store

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// checkSchema evaluates the $jsonSchema keywords used by the records validators
// so the memory store rejects what the server would.
func checkSchema(node map[string]interface{}, value interface{}, path string) error {
	if t, ok := node["bsonType"].(string); ok && !hasBSONType(value, t) {
		return fmt.Errorf("%s: expected %s, got %T", path, t, value)
	}

	if enum, ok := models.AsSlice(node["enum"]); ok {
		found := false
		for _, option := range enum {
			if models.Equal(value, option) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: value %v is not one of the allowed values", path, value)
		}
	}

	if s, ok := value.(string); ok {
		n := int64(utf8.RuneCountInString(s))
		if limit, ok := models.AsInt(node["minLength"]); ok && n < limit {
			return fmt.Errorf("%s: shorter than %d characters", path, limit)
		}
		if limit, ok := models.AsInt(node["maxLength"]); ok && n > limit {
			return fmt.Errorf("%s: longer than %d characters", path, limit)
		}
	}

	if n, ok := number(value); ok {
		if limit, ok := number(node["minimum"]); ok && n < limit {
			return fmt.Errorf("%s: %v is below minimum %v", path, value, limit)
		}
		if limit, ok := number(node["maximum"]); ok && n > limit {
			return fmt.Errorf("%s: %v is above maximum %v", path, value, limit)
		}
	}

	if obj, ok := models.AsMap(value); ok {
		if err := checkObject(node, obj, path); err != nil {
			return err
		}
	}

	if items, ok := models.AsSlice(value); ok {
		if itemNode, ok := models.AsMap(node["items"]); ok {
			for i, item := range items {
				if err := checkSchema(itemNode, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
		if unique, _ := node["uniqueItems"].(bool); unique {
			for i := range items {
				for j := i + 1; j < len(items); j++ {
					if models.Equal(items[i], items[j]) {
						return fmt.Errorf("%s: items %d and %d are identical", path, i, j)
					}
				}
			}
		}
	}

	if branches, ok := models.AsSlice(node["oneOf"]); ok {
		passed := 0
		for _, b := range branches {
			branch, ok := models.AsMap(b)
			if !ok {
				continue
			}
			if checkSchema(branch, value, path) == nil {
				passed++
			}
		}
		if passed != 1 {
			return fmt.Errorf("%s: matches %d oneOf branches, want exactly 1", path, passed)
		}
	}
	return nil
}

func checkObject(node, obj map[string]interface{}, path string) error {
	if required, ok := models.AsSlice(node["required"]); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := obj[name]; !present {
				return fmt.Errorf("%s: missing required field %s", objectPath(path), name)
			}
		}
	}
	props, _ := models.AsMap(node["properties"])
	for name, v := range obj {
		propNode, declared := models.AsMap(props[name])
		if !declared {
			if additional, ok := node["additionalProperties"].(bool); ok && !additional {
				return fmt.Errorf("%s: field %s is not allowed", objectPath(path), name)
			}
			continue
		}
		if err := checkSchema(propNode, v, joinPath(path, name)); err != nil {
			return err
		}
	}
	return nil
}

func hasBSONType(v interface{}, t string) bool {
	switch t {
	case "object":
		_, ok := models.AsMap(v)
		return ok
	case "array":
		_, ok := models.AsSlice(v)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := number(v)
		return ok
	case "int":
		switch v.(type) {
		case int, int32:
			return true
		}
		return false
	case "objectId":
		_, ok := v.(primitive.ObjectID)
		return ok
	case "date":
		switch v.(type) {
		case time.Time, primitive.DateTime:
			return true
		}
		return false
	case "bool":
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func objectPath(path string) string {
	if path == "" {
		return "document"
	}
	return strings.TrimSpace(path)
}
