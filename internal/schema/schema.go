package schema

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Kind classifies how a field is validated, prompted and denormalized.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	// KindTime is a clock time stored as an HHMM integer.
	KindTime
	KindEnum
	// KindReference holds the identifier of a document in Field.Target.
	KindReference
	// KindEmbeddedArray is maintained by relationship operations and never prompted.
	KindEmbeddedArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindTime:
		return "time"
	case KindEnum:
		return "enum"
	case KindReference:
		return "reference"
	case KindEmbeddedArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Variant names one of the closed set of entity kinds.
type Variant string

const (
	VariantDepartment Variant = "department"
	VariantCourse     Variant = "course"
	VariantSection    Variant = "section"
	VariantStudent    Variant = "student"
)

// Variants lists every entity kind in dependency order.
var Variants = []Variant{VariantDepartment, VariantCourse, VariantSection, VariantStudent}

// Field declares one attribute of a variant.
type Field struct {
	Name string
	Kind Kind
	// Target is the referenced collection for KindReference, and for
	// KindEmbeddedArray fields that hold bare references.
	Target string
	// Rule is a validator tag checked before submission.
	Rule    string
	Options []string
	Prompt  string
}

// Display describes how documents of this variant appear when referenced elsewhere.
// Multiple fields are joined with ", " so students read "Last, First".
type Display struct {
	Fields  []string
	Unknown string
}

// Name renders the display name of doc, or "" when a display field is missing.
func (d Display) Name(doc map[string]interface{}) string {
	parts := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		v, ok := doc[f].(string)
		if !ok {
			return ""
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ", ")
}

// AttributeSchema binds a variant to its fields, unique combinations and store validator.
// Field order is significant: it is the prompt order and the index space of Unique.
type AttributeSchema struct {
	Collection string
	Variant    Variant
	Fields     []Field
	Unique     [][]int
	Display    Display
	Validator  bson.M
}

// Validate checks the declaration is internally consistent.
func (s *AttributeSchema) Validate() error {
	if s.Collection == "" {
		return fmt.Errorf("schema %s: collection name is empty", s.Variant)
	}
	if len(s.Unique) == 0 {
		return fmt.Errorf("schema %s: at least one unique combination is required", s.Collection)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.Collection, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Kind == KindReference && f.Target == "" {
			return fmt.Errorf("schema %s: reference field %q has no target", s.Collection, f.Name)
		}
		if f.Kind == KindEnum && len(f.Options) == 0 {
			return fmt.Errorf("schema %s: enum field %q has no options", s.Collection, f.Name)
		}
	}
	for i, combo := range s.Unique {
		if len(combo) == 0 {
			return fmt.Errorf("schema %s: unique combination %d is empty", s.Collection, i)
		}
		for _, idx := range combo {
			if idx < 0 || idx >= len(s.Fields) {
				return fmt.Errorf("schema %s: unique combination %d references field %d out of range", s.Collection, i, idx)
			}
			if s.Fields[idx].Kind == KindEmbeddedArray {
				return fmt.Errorf("schema %s: unique combination %d includes array field %q", s.Collection, i, s.Fields[idx].Name)
			}
		}
	}
	return nil
}

// Field returns the declaration for name.
func (s *AttributeSchema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Combination returns the fields making up unique combination i.
func (s *AttributeSchema) Combination(i int) ([]Field, error) {
	if i < 0 || i >= len(s.Unique) {
		return nil, fmt.Errorf("schema %s: no unique combination %d", s.Collection, i)
	}
	fields := make([]Field, 0, len(s.Unique[i]))
	for _, idx := range s.Unique[i] {
		fields = append(fields, s.Fields[idx])
	}
	return fields, nil
}

// CombinationLabel renders combination i as "field, field" for menus and index names.
func (s *AttributeSchema) CombinationLabel(i int) string {
	fields, err := s.Combination(i)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return strings.Join(names, ", ")
}

// Prompted returns the fields supplied at creation time, in order.
func (s *AttributeSchema) Prompted() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Kind != KindEmbeddedArray {
			out = append(out, f)
		}
	}
	return out
}

// References returns the single-reference fields.
func (s *AttributeSchema) References() []Field {
	return s.byKind(KindReference)
}

// Arrays returns the embedded-array fields.
func (s *AttributeSchema) Arrays() []Field {
	return s.byKind(KindEmbeddedArray)
}

// FieldNames lists every declared field name in order.
func (s *AttributeSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

func (s *AttributeSchema) byKind(kind Kind) []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// oneOf renders options as a validator oneof rule, quoting values with spaces.
func oneOf(options []string) string {
	quoted := make([]string, 0, len(options))
	for _, o := range options {
		if strings.ContainsAny(o, " ") {
			o = "'" + o + "'"
		}
		quoted = append(quoted, o)
	}
	return "oneof=" + strings.Join(quoted, " ")
}

// enumValues converts options into the BSON array used by $jsonSchema enums.
func enumValues(options []string) bson.A {
	out := make(bson.A, 0, len(options))
	for _, o := range options {
		out = append(out, o)
	}
	return out
}
