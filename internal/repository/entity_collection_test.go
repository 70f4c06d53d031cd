package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

type engine struct {
	registry    *Registry
	memory      *store.MemoryStore
	departments *EntityCollection
	courses     *EntityCollection
	sections    *EntityCollection
	students    *EntityCollection
}

func newEngine(t *testing.T, opts ...Option) *engine {
	t.Helper()
	e := &engine{registry: NewRegistry(), memory: store.NewMemoryStore()}
	build := func(s *schema.AttributeSchema) *EntityCollection {
		c := NewEntityCollection(e.memory.Collection(s.Collection), s, e.registry, opts...)
		require.NoError(t, c.Setup(context.Background()))
		e.registry.Register(s.Collection, c)
		return c
	}
	e.departments = build(schema.Departments())
	e.courses = build(schema.Courses())
	e.sections = build(schema.Sections())
	e.students = build(schema.Students())
	return e
}

func departmentValues(name, abbreviation string, office int) Values {
	return Values{
		"name":         name,
		"abbreviation": abbreviation,
		"chair_name":   "Chair of " + abbreviation,
		"building":     "ECS",
		"office":       office,
		"description":  "Department of " + name,
	}
}

func courseValues(department string, number int, name string) Values {
	return Values{
		"department":    Reference{Combination: 0, Key: Values{"name": department}},
		"course_number": number,
		"course_name":   name,
		"description":   "An introduction to " + name,
		"units":         3,
	}
}

func sectionValues(courseDept string, courseNumber, sectionNumber int, room int) Values {
	return Values{
		"course": Reference{Combination: 0, Key: Values{
			"department":    Reference{Combination: 0, Key: Values{"name": courseDept}},
			"course_number": courseNumber,
		}},
		"section_number": sectionNumber,
		"semester":       "Fall",
		"section_year":   2024,
		"building":       "ECS",
		"room":           room,
		"schedule":       "MW",
		"start_time":     1000,
		"instructor":     "Dr. Brown",
	}
}

func code(err error) string {
	if e := appErrors.FromError(err); e != nil {
		return e.Code
	}
	return ""
}

func TestCreateLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	department := Reference{Combination: 0, Key: Values{"name": "Computer Science"}}
	course := Reference{Combination: 0, Key: Values{"department": department, "course_number": 323}}
	student := Values{"last_name": "Lovelace", "first_name": "Ada", "email": "ada.lovelace@example.edu"}

	cases := []struct {
		name   string
		coll   *EntityCollection
		values Values
		// display holds the expected names of reference fields after lookup.
		display Values
		arrays  []string
		keys    []Values
	}{
		{
			name:   "department",
			coll:   e.departments,
			values: departmentValues("Computer Science", "CECS", 301),
			arrays: []string{"majors", "courses"},
			keys: []Values{
				{"name": "Computer Science"},
				{"abbreviation": "CECS"},
				{"chair_name": "Chair of CECS"},
				{"building": "ECS", "office": "301"},
			},
		},
		{
			name:    "course",
			coll:    e.courses,
			values:  courseValues("Computer Science", 323, "Databases"),
			display: Values{"department": "Computer Science"},
			keys: []Values{
				{"department": department, "course_number": 323},
				{"department": department, "course_name": "Databases"},
			},
		},
		{
			name:    "section",
			coll:    e.sections,
			values:  sectionValues("Computer Science", 323, 1, 416),
			display: Values{"course": "Databases"},
			arrays:  []string{"students"},
			keys: []Values{
				{"course": course, "section_number": 1, "semester": "Fall", "section_year": 2024},
				{"semester": "Fall", "section_year": 2024, "building": "ECS", "room": 416, "schedule": "MW", "start_time": 1000},
				{"semester": "Fall", "section_year": 2024, "schedule": "MW", "start_time": 1000, "instructor": "Dr. Brown"},
			},
		},
		{
			name:   "student",
			coll:   e.students,
			values: student,
			arrays: []string{"majors", "sections"},
			keys: []Values{
				{"last_name": "Lovelace", "first_name": "Ada"},
				{"email": "ada.lovelace@example.edu"},
			},
		},
	}

	// Cases build on each other: courses need the department, sections the course.
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := tc.coll.Create(ctx, tc.values, nil)
			require.NoError(t, err)
			require.Len(t, tc.keys, len(tc.coll.Schema().Unique))

			for combo, key := range tc.keys {
				doc, err := tc.coll.LookupByKey(ctx, combo, key)
				require.NoError(t, err, "combination %d", combo)
				got, _ := doc.ID()
				assert.Equal(t, id, got)
				for field, want := range tc.values {
					if name, ok := tc.display[field]; ok {
						want = name
					}
					assert.True(t, models.Equal(doc[field], want), "field %s: %v != %v", field, doc[field], want)
				}
				for _, field := range tc.arrays {
					items, ok := models.AsSlice(doc[field])
					assert.True(t, ok, "field %s is an array", field)
					assert.Empty(t, items)
				}
			}
		})
	}

	_, err := e.departments.LookupByKey(ctx, 0, Values{"name": "Mathematics Department"})
	assert.Equal(t, appErrors.ErrNotFound.Code, code(err))
	_, err = e.students.LookupByKey(ctx, 1, Values{"email": "grace.hopper@example.edu"})
	assert.Equal(t, appErrors.ErrNotFound.Code, code(err))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	_, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)
	_, err = e.courses.Create(ctx, courseValues("Computer Science", 323, "Databases"), nil)
	require.NoError(t, err)

	cases := map[string]struct {
		coll   *EntityCollection
		values Values
		code   string
	}{
		"missing field": {e.departments, func() Values {
			v := departmentValues("Mathematics Dept", "MATH", 10)
			delete(v, "chair_name")
			return v
		}(), appErrors.ErrValidation.Code},
		"unknown field": {e.departments, func() Values {
			v := departmentValues("Mathematics Dept", "MATH", 10)
			v["dean"] = "x"
			return v
		}(), appErrors.ErrValidation.Code},
		"array supplied": {e.departments, func() Values {
			v := departmentValues("Mathematics Dept", "MATH", 10)
			v["majors"] = []interface{}{}
			return v
		}(), appErrors.ErrValidation.Code},
		"bad enum": {e.departments, func() Values {
			v := departmentValues("Mathematics Dept", "MATH", 10)
			v["building"] = "ANAC"
			return v
		}(), appErrors.ErrValidation.Code},
		"store validator": {e.departments, departmentValues("Math", "MATH", 10), appErrors.ErrValidation.Code},
		"course number range": {e.courses, courseValues("Computer Science", 99, "Compilers"), appErrors.ErrValidation.Code},
		"not a number": {e.courses, courseValues("Computer Science", 0, "Databases").merge(Values{"units": "three"}), appErrors.ErrValidation.Code},
		"raw identifier": {e.courses, courseValues("Computer Science", 324, "Compilers").merge(Values{"department": primitive.NewObjectID()}), appErrors.ErrValidation.Code},
		"missing reference": {e.courses, courseValues("Physics Department", 100, "Mechanics"), appErrors.ErrReferenceNotFound.Code},
		"office wider than int32": {e.departments, departmentValues("Mathematics Dept", "MATH", 10).merge(Values{"office": float64(1e19)}), appErrors.ErrValidation.Code},
		"year wider than int32": {e.sections, sectionValues("Computer Science", 323, 1, 1).merge(Values{"section_year": float64(1e19)}), appErrors.ErrValidation.Code},
		"minutes past the hour": {e.sections, sectionValues("Computer Science", 323, 1, 1).merge(Values{"start_time": 1075}), appErrors.ErrValidation.Code},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.coll.Create(ctx, tc.values, nil)
			require.Error(t, err)
			assert.Equal(t, tc.code, code(err), err.Error())
		})
	}
}

func (v Values) merge(other Values) Values {
	out := Values{}
	for k, val := range v {
		out[k] = val
	}
	for k, val := range other {
		out[k] = val
	}
	return out
}

func TestCreateDuplicateIsRetryableUniquenessConflict(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	_, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)

	_, err = e.departments.Create(ctx, departmentValues("Computer Engineering", "CECS", 302), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUniquenessConflict.Code, code(err))
	assert.True(t, appErrors.IsRetryable(err))

	n, err := e.departments.Count(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSectionRoomConflictCreatesNothing(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	_, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)
	_, err = e.courses.Create(ctx, courseValues("Computer Science", 323, "Databases"), nil)
	require.NoError(t, err)
	_, err = e.courses.Create(ctx, courseValues("Computer Science", 326, "Operating Systems"), nil)
	require.NoError(t, err)

	_, err = e.sections.Create(ctx, sectionValues("Computer Science", 323, 1, 416), nil)
	require.NoError(t, err)

	clash := sectionValues("Computer Science", 326, 1, 416)
	clash["instructor"] = "Dr. Green"
	_, err = e.sections.Create(ctx, clash, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUniquenessConflict.Code, code(err))

	n, err := e.sections.Count(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type failingInsertHook struct{ called bool }

func (h *failingInsertHook) AfterInsert(context.Context, primitive.ObjectID, models.Document) error {
	h.called = true
	return appErrors.Clone(appErrors.ErrStoreFailure, "link failed")
}

func TestCreateCompensatesWhenHookFails(t *testing.T) {
	ctx := context.Background()
	audit := &recordingAudit{}
	e := newEngine(t, WithAudit(audit))
	_, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)

	hook := &failingInsertHook{}
	_, err = e.courses.Create(ctx, courseValues("Computer Science", 323, "Databases"), hook)
	require.Error(t, err)
	assert.True(t, hook.called)
	assert.Equal(t, "link failed", appErrors.FromError(err).Message)

	n, err := e.courses.Count(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, []string{"CREATE", "CREATE", "COMPENSATE"}, audit.actions())
}

func TestLookupDenormalizesReferences(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	deptID, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)
	courseID, err := e.courses.Create(ctx, courseValues("Computer Science", 323, "Databases"), nil)
	require.NoError(t, err)
	_, err = e.departments.Push(ctx, deptID, "courses", courseID)
	require.NoError(t, err)
	studentID, err := e.students.Create(ctx, Values{"last_name": "Lovelace", "first_name": "Ada", "email": "ada@example.edu"}, nil)
	require.NoError(t, err)
	sectionID, err := e.sections.Create(ctx, sectionValues("Computer Science", 323, 1, 416), nil)
	require.NoError(t, err)
	_, err = e.sections.Push(ctx, sectionID, "students", studentID)
	require.NoError(t, err)

	course, err := e.courses.LookupByKey(ctx, 1, Values{"department": deptID, "course_name": "Databases"})
	require.NoError(t, err)
	assert.Equal(t, "Computer Science", course["department"])

	dept, err := e.departments.LookupByKey(ctx, 1, Values{"abbreviation": "CECS"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Databases"}, dept["courses"])

	section, err := e.sections.LookupByKey(ctx, 0, Values{
		"course": courseID.Hex(), "section_number": 1, "semester": "Fall", "section_year": 2024,
	})
	require.NoError(t, err)
	assert.Equal(t, "Databases", section["course"])
	assert.Equal(t, []interface{}{"Lovelace, Ada"}, section["students"])

	raw, err := e.sections.FindByID(ctx, sectionID)
	require.NoError(t, err)
	assert.Equal(t, courseID, raw["course"], "raw finders keep identifiers")

	_, err = e.memory.Collection("courses").DeleteOne(ctx, bson.M{"_id": courseID})
	require.NoError(t, err)
	section, err = e.sections.LookupByKey(ctx, 1, Values{
		"semester": "Fall", "section_year": 2024, "building": "ECS", "room": 416, "schedule": "MW", "start_time": 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Unknown Course", section["course"])

	dept, err = e.departments.LookupByKey(ctx, 0, Values{"name": "Computer Science"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Unknown Course"}, dept["courses"])
}

func TestListAllKeepsDocumentsWithVanishedReferences(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	deptID, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)
	_, err = e.departments.Create(ctx, departmentValues("Mathematics Dept", "MATH", 12), nil)
	require.NoError(t, err)
	_, err = e.courses.Create(ctx, courseValues("Computer Science", 323, "Databases"), nil)
	require.NoError(t, err)
	_, err = e.courses.Create(ctx, courseValues("Mathematics Dept", 247, "Linear Algebra"), nil)
	require.NoError(t, err)

	_, err = e.departments.Delete(ctx, deptID, nil)
	require.NoError(t, err)

	rows, err := e.courses.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	departments := []interface{}{rows[0]["department"], rows[1]["department"]}
	assert.ElementsMatch(t, []interface{}{"Unknown Department", "Mathematics Dept"}, departments)
}

type refusingDeleteHook struct{}

func (refusingDeleteHook) BeforeDelete(_ context.Context, doc models.Document) error {
	return appErrors.Clonef(appErrors.ErrIntegrityRefusal, "%d course(s) must be deleted first", len(doc.Slice("courses")))
}

type vanishingDeleteHook struct{ coll store.Collection }

func (h vanishingDeleteHook) BeforeDelete(ctx context.Context, doc models.Document) error {
	_, err := h.coll.DeleteOne(ctx, bson.M{"_id": doc[models.FieldID]})
	return err
}

type plainErrorDeleteHook struct{}

func (plainErrorDeleteHook) BeforeDelete(context.Context, models.Document) error {
	return errors.New("roster pull failed")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	id, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)

	_, err = e.departments.Delete(ctx, id, refusingDeleteHook{})
	assert.Equal(t, appErrors.ErrIntegrityRefusal.Code, code(err))

	_, err = e.departments.Delete(ctx, id, plainErrorDeleteHook{})
	assert.Equal(t, appErrors.ErrIntegrityRefusal.Code, code(err))
	assert.True(t, strings.Contains(err.Error(), "roster pull failed"))

	_, err = e.departments.FindByID(ctx, id)
	require.NoError(t, err, "refused deletes leave the document in place")

	_, err = e.departments.Delete(ctx, id, vanishingDeleteHook{coll: e.memory.Collection("departments")})
	assert.Equal(t, appErrors.ErrStoreFailure.Code, code(err))

	_, err = e.departments.Delete(ctx, id, nil)
	assert.Equal(t, appErrors.ErrNotFound.Code, code(err))

	other, err := e.departments.Create(ctx, departmentValues("Mathematics Dept", "MATH", 12), nil)
	require.NoError(t, err)
	n, err := e.departments.Delete(ctx, other, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	hits        int
	invalidated int
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	m.hits++
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) Invalidate(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string][]byte{}
	m.invalidated++
	return nil
}

func TestListAllUsesCacheAndWritesInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := &memoryCache{entries: map[string][]byte{}}
	e := newEngine(t, WithCache(cache, time.Minute))
	deptID, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)

	first, err := e.departments.ListAll(ctx)
	require.NoError(t, err)
	second, err := e.departments.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	require.Len(t, second, 1)
	assert.Equal(t, deptID, second[0][models.FieldID], "identifiers survive the cache")
	assert.Equal(t, first[0]["office"], second[0]["office"])

	_, err = e.departments.Create(ctx, departmentValues("Mathematics Dept", "MATH", 12), nil)
	require.NoError(t, err)
	third, err := e.departments.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 1, cache.hits)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *recordingAudit) Create(_ context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingObserver) ObserveStoreOperation(collection, operation string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, collection+"."+operation)
}

func TestWritesAreAuditedAndTimed(t *testing.T) {
	ctx := WithActor(context.Background(), "registrar")
	audit := &recordingAudit{}
	observer := &recordingObserver{}
	e := newEngine(t, WithAudit(audit), WithMetrics(observer))

	id, err := e.departments.Create(ctx, departmentValues("Computer Science", "CECS", 301), nil)
	require.NoError(t, err)
	n, err := e.departments.Push(ctx, id, "majors", models.Major{Name: "Computer Science", Description: "Programs"}.Document())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = e.departments.Pull(ctx, id, "majors", bson.M{"name": "Software Engineering"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, []string{"CREATE", "UPDATE"}, audit.actions())
	require.NotNil(t, audit.entries[0].Actor)
	assert.Equal(t, "registrar", *audit.entries[0].Actor)
	assert.Equal(t, id.Hex(), *audit.entries[1].ResourceID)
	assert.Contains(t, observer.ops, "departments.insert_one")
	assert.Contains(t, observer.ops, "departments.ensure_index")
}

func TestSetupIsIdempotent(t *testing.T) {
	e := newEngine(t)
	assert.NoError(t, e.sections.Setup(context.Background()))
}
