package schema

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAllSchemasAreConsistent(t *testing.T) {
	for _, s := range All() {
		t.Run(s.Collection, func(t *testing.T) {
			require.NoError(t, s.Validate())
			assert.NotEmpty(t, s.Display.Fields)
			assert.NotEmpty(t, s.Display.Unknown)
			_, ok := s.Validator["$jsonSchema"]
			assert.True(t, ok)
		})
	}
}

func TestUniqueCombinations(t *testing.T) {
	assert.Equal(t, "name", Departments().CombinationLabel(0))
	assert.Equal(t, "building, office", Departments().CombinationLabel(3))
	assert.Equal(t, "department, course_name", Courses().CombinationLabel(1))
	assert.Equal(t, "semester, section_year, building, room, schedule, start_time", Sections().CombinationLabel(1))
	assert.Equal(t, "semester, section_year, schedule, start_time, instructor", Sections().CombinationLabel(2))
	assert.Equal(t, "email", Students().CombinationLabel(1))

	_, err := Students().Combination(2)
	assert.Error(t, err)
}

func TestValidateRejectsBadDeclarations(t *testing.T) {
	s := Courses()
	s.Unique = append(s.Unique, []int{9})
	assert.Error(t, s.Validate())

	s = Departments()
	s.Unique = [][]int{{6}}
	assert.Error(t, s.Validate(), "array fields cannot be part of a unique combination")

	s = Sections()
	s.Unique = nil
	assert.Error(t, s.Validate())

	s = Courses()
	s.Fields[0].Target = ""
	assert.Error(t, s.Validate())
}

func TestPromptedSkipsArrays(t *testing.T) {
	fields := Departments().Prompted()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "abbreviation", "chair_name", "building", "office", "description"}, names)
	assert.Len(t, Departments().Arrays(), 2)
	assert.Len(t, Sections().References(), 1)
}

func TestEnumRulesAcceptQuotedOptions(t *testing.T) {
	validate := validator.New()
	semester, ok := Sections().Field("semester")
	require.True(t, ok)

	assert.NoError(t, validate.Var("Summer II", semester.Rule))
	assert.NoError(t, validate.Var("Fall", semester.Rule))
	assert.Error(t, validate.Var("Summer", semester.Rule))
	assert.Error(t, validate.Var("", semester.Rule))

	building, _ := Sections().Field("building")
	assert.NoError(t, validate.Var("ANAC", building.Rule))
	assert.Error(t, validate.Var("NAC", building.Rule))

	deptBuilding, _ := Departments().Field("building")
	assert.NoError(t, validate.Var("NAC", deptBuilding.Rule))
}

func TestIntegerRules(t *testing.T) {
	validate := validator.New()
	start, _ := Sections().Field("start_time")
	assert.NoError(t, validate.Var(800, start.Rule))
	assert.NoError(t, validate.Var(1930, start.Rule))
	assert.Error(t, validate.Var(1931, start.Rule))
	assert.Error(t, validate.Var(759, start.Rule))

	number, _ := Courses().Field("course_number")
	assert.Error(t, validate.Var(99, number.Rule))
	assert.NoError(t, validate.Var(699, number.Rule))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Lovelace, Ada", Students().Display.Name(bson.M{"last_name": "Lovelace", "first_name": "Ada"}))
	assert.Equal(t, "", Students().Display.Name(bson.M{"last_name": "Lovelace"}))
	assert.Equal(t, "Database Fundamentals", Courses().Display.Name(map[string]interface{}{"course_name": "Database Fundamentals"}))
}

func TestValidatorsMatchStoreContract(t *testing.T) {
	props := func(s *AttributeSchema) bson.M {
		return s.Validator["$jsonSchema"].(bson.M)["properties"].(bson.M)
	}

	name := props(Departments())["name"].(bson.M)
	assert.Equal(t, 10, name["minLength"])
	assert.Equal(t, 50, name["maxLength"])

	room := props(Sections())["room"].(bson.M)
	assert.Equal(t, 1, room["minimum"])
	assert.Equal(t, 999, room["maximum"])
	assert.Len(t, props(Sections())["semester"].(bson.M)["enum"], 6)

	assert.Equal(t, false, Students().Validator["$jsonSchema"].(bson.M)["additionalProperties"])
	_, hasAdditional := Departments().Validator["$jsonSchema"].(bson.M)["additionalProperties"]
	assert.False(t, hasAdditional)
}
