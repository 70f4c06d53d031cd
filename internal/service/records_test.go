package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

func newTestRecords(t *testing.T) *Records {
	t.Helper()
	r, err := NewRecords(context.Background(), store.NewMemoryStore(), RecordsOptions{})
	require.NoError(t, err)
	return r
}

func hasCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, want.Code), "want %s, got %v", want.Code, err)
}

func addDepartment(t *testing.T, r *Records, name, abbreviation string) primitive.ObjectID {
	t.Helper()
	id, err := r.Departments.Create(context.Background(), repository.Values{
		"name":         name,
		"abbreviation": abbreviation,
		"chair_name":   "Chair of " + abbreviation,
		"building":     "ECS",
		"office":       officeFor(abbreviation),
		"description":  "Department of " + name,
	})
	require.NoError(t, err)
	return id
}

// officeFor keeps (building, office) distinct across test departments.
func officeFor(abbreviation string) int {
	office := 100
	for _, r := range abbreviation {
		office += int(r)
	}
	return office
}

func addCourse(t *testing.T, r *Records, department string, number int, name string) primitive.ObjectID {
	t.Helper()
	id, err := r.Courses.Create(context.Background(), repository.Values{
		"department":    repository.Reference{Combination: 0, Key: repository.Values{"name": department}},
		"course_number": number,
		"course_name":   name,
		"description":   "An introduction to " + name,
		"units":         3,
	})
	require.NoError(t, err)
	return id
}

type sectionSpec struct {
	courseID   primitive.ObjectID
	number     int
	semester   string
	year       int
	room       int
	startTime  int
	instructor string
}

func addSection(t *testing.T, r *Records, s sectionSpec) primitive.ObjectID {
	t.Helper()
	course, err := r.Courses.FindByID(context.Background(), s.courseID)
	require.NoError(t, err)
	id, err := r.Sections.Create(context.Background(), repository.Values{
		"course": repository.Reference{Combination: 0, Key: repository.Values{
			"department":    course["department"].(primitive.ObjectID).Hex(),
			"course_number": course["course_number"],
		}},
		"section_number": s.number,
		"semester":       s.semester,
		"section_year":   s.year,
		"building":       "ECS",
		"room":           s.room,
		"schedule":       "MW",
		"start_time":     s.startTime,
		"instructor":     s.instructor,
	})
	require.NoError(t, err)
	return id
}

func addStudent(t *testing.T, r *Records, last, first string) primitive.ObjectID {
	t.Helper()
	id, err := r.Students.Create(context.Background(), repository.Values{
		"last_name":  last,
		"first_name": first,
		"email":      first + "." + last + "@example.edu",
	})
	require.NoError(t, err)
	return id
}

func TestNewRecordsRegistersEveryVariant(t *testing.T) {
	r := newTestRecords(t)

	for _, name := range []string{"departments", "courses", "sections", "students"} {
		e, err := r.Entity(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Schema().Collection)
		_, err = r.Registry.Resolve(name)
		require.NoError(t, err)
	}
	_, err := r.Entity("faculty")
	hasCode(t, err, appErrors.ErrNotFound)

	kinds := make([]schema.Variant, 0, 4)
	for _, e := range r.Entities() {
		kinds = append(kinds, e.Kind())
	}
	assert.Equal(t, schema.Variants, kinds)
}

func TestDepartmentDeleteRefusedWhileItOwnsCourses(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	deptID := addDepartment(t, r, "Computer Science", "CECS")
	courseID := addCourse(t, r, "Computer Science", 323, "Databases")

	_, err := r.Departments.Delete(ctx, deptID)
	hasCode(t, err, appErrors.ErrIntegrityRefusal)
	assert.Contains(t, err.Error(), "1 course")

	dept, err := r.Departments.FindByID(ctx, deptID)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{courseID}, dept.Slice("courses"))
}

func TestDepartmentDeleteRefusedWhileItOwnsMajors(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	deptID := addDepartment(t, r, "Computer Science", "CECS")
	require.NoError(t, r.Departments.AddMajor(ctx, deptID, models.Major{Name: "Computer Science", Description: "Software and systems"}))

	_, err := r.Departments.Delete(ctx, deptID)
	hasCode(t, err, appErrors.ErrIntegrityRefusal)

	require.NoError(t, r.Departments.DeleteMajor(ctx, "Computer Science"))
	n, err := r.Departments.Delete(ctx, deptID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCourseDeleteDetachesFromDepartment(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	deptID := addDepartment(t, r, "Computer Science", "CECS")
	courseID := addCourse(t, r, "Computer Science", 323, "Databases")

	dept, err := r.Departments.FindByID(ctx, deptID)
	require.NoError(t, err)
	require.Equal(t, []interface{}{courseID}, dept.Slice("courses"))

	n, err := r.Courses.Delete(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	dept, err = r.Departments.FindByID(ctx, deptID)
	require.NoError(t, err)
	assert.Empty(t, dept.Slice("courses"))
	_, err = r.Courses.FindByID(ctx, courseID)
	hasCode(t, err, appErrors.ErrNotFound)
}

func TestCourseDeleteRefusedWithSectionsLeavesDepartmentAlone(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	deptID := addDepartment(t, r, "Computer Science", "CECS")
	courseID := addCourse(t, r, "Computer Science", 323, "Databases")
	addSection(t, r, sectionSpec{courseID: courseID, number: 1, semester: "Fall", year: 2024, room: 416, startTime: 1000, instructor: "Dr. Brown"})

	_, err := r.Courses.Delete(ctx, courseID)
	hasCode(t, err, appErrors.ErrIntegrityRefusal)
	assert.Contains(t, err.Error(), "1 section")

	dept, err := r.Departments.FindByID(ctx, deptID)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{courseID}, dept.Slice("courses"))
}

type failingCatalog struct{}

func (failingCatalog) AppendCourse(context.Context, primitive.ObjectID, primitive.ObjectID) (int64, error) {
	return 0, appErrors.Clone(appErrors.ErrStoreFailure, "department update failed")
}

func (failingCatalog) RemoveCourse(context.Context, primitive.ObjectID, primitive.ObjectID) (int64, error) {
	return 0, nil
}

func TestCourseCreateIsUndoneWhenDepartmentLinkFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	addDepartment(t, r, "Computer Science", "CECS")
	courses, err := r.Registry.Resolve("courses")
	require.NoError(t, err)
	sections, err := r.Registry.Resolve("sections")
	require.NoError(t, err)
	svc := NewCourseService(courses, failingCatalog{}, sections, nil)

	_, err = svc.Create(ctx, repository.Values{
		"department":    repository.Reference{Combination: 1, Key: repository.Values{"abbreviation": "CECS"}},
		"course_number": 323,
		"course_name":   "Databases",
		"description":   "Relational design",
		"units":         3,
	})
	hasCode(t, err, appErrors.ErrStoreFailure)

	n, err := courses.Count(ctx, bson.M{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDepartmentMajors(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	cs := addDepartment(t, r, "Computer Science", "CECS")
	math := addDepartment(t, r, "Mathematics Dept", "MATH")

	require.NoError(t, r.Departments.AddMajor(ctx, cs, models.Major{Name: "Computer Science", Description: "Software"}))
	require.NoError(t, r.Departments.AddMajor(ctx, math, models.Major{Name: "Applied Mathematics", Description: "Modelling"}))

	err := r.Departments.AddMajor(ctx, math, models.Major{Name: "Computer Science", Description: "Again"})
	hasCode(t, err, appErrors.ErrUniquenessConflict)
	err = r.Departments.AddMajor(ctx, math, models.Major{Name: "Statistics"})
	hasCode(t, err, appErrors.ErrValidation)
	err = r.Departments.AddMajor(ctx, primitive.NewObjectID(), models.Major{Name: "Statistics", Description: "Data"})
	hasCode(t, err, appErrors.ErrNotFound)

	majors, err := r.Departments.ListMajors(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.MajorListing{
		{Department: "Computer Science", Name: "Computer Science", Description: "Software"},
		{Department: "Mathematics Dept", Name: "Applied Mathematics", Description: "Modelling"},
	}, majors)

	err = r.Departments.DeleteMajor(ctx, "Physics")
	hasCode(t, err, appErrors.ErrNotFound)
}

func TestDepartmentDeleteMajorRefusedWhileDeclared(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	cs := addDepartment(t, r, "Computer Science", "CECS")
	require.NoError(t, r.Departments.AddMajor(ctx, cs, models.Major{Name: "Computer Science", Description: "Software"}))
	student := addStudent(t, r, "Lovelace", "Ada")
	require.NoError(t, r.Students.AddMajor(ctx, student, "Computer Science", time.Now().AddDate(0, -1, 0)))

	err := r.Departments.DeleteMajor(ctx, "Computer Science")
	hasCode(t, err, appErrors.ErrIntegrityRefusal)
	assert.Contains(t, err.Error(), "1 student")

	n, err := r.Students.DeleteMajor(ctx, student, "Computer Science")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, r.Departments.DeleteMajor(ctx, "Computer Science"))
}

func TestStudentMajors(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	cs := addDepartment(t, r, "Computer Science", "CECS")
	require.NoError(t, r.Departments.AddMajor(ctx, cs, models.Major{Name: "Computer Science", Description: "Software"}))
	student := addStudent(t, r, "Lovelace", "Ada")

	declared := time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Students.AddMajor(ctx, student, "Computer Science", declared))

	hasCode(t, r.Students.AddMajor(ctx, student, "Computer Science", declared), appErrors.ErrUniquenessConflict)
	hasCode(t, r.Students.AddMajor(ctx, student, "Astrophysics", declared), appErrors.ErrReferenceNotFound)
	hasCode(t, r.Students.AddMajor(ctx, student, "Computer Science", time.Now().AddDate(0, 0, 2)), appErrors.ErrValidation)
	hasCode(t, r.Students.AddMajor(ctx, primitive.NewObjectID(), "Computer Science", declared), appErrors.ErrNotFound)

	rows, err := r.Students.ListMajors(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lovelace, Ada", rows[0].Student)
	assert.Equal(t, "Computer Science", rows[0].Major)
	assert.True(t, declared.Equal(rows[0].DeclarationDate))

	n, err := r.Students.DeleteMajor(ctx, student, "Computer Science")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = r.Students.DeleteMajor(ctx, student, "Computer Science")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type enrollmentFixture struct {
	r        *Records
	student  primitive.ObjectID
	course   primitive.ObjectID
	section1 primitive.ObjectID
	section2 primitive.ObjectID
	spring   primitive.ObjectID
}

func newEnrollmentFixture(t *testing.T) enrollmentFixture {
	r := newTestRecords(t)
	addDepartment(t, r, "Computer Science", "CECS")
	course := addCourse(t, r, "Computer Science", 323, "Databases")
	return enrollmentFixture{
		r:        r,
		student:  addStudent(t, r, "Lovelace", "Ada"),
		course:   course,
		section1: addSection(t, r, sectionSpec{courseID: course, number: 1, semester: "Fall", year: 2024, room: 416, startTime: 1000, instructor: "Dr. Brown"}),
		section2: addSection(t, r, sectionSpec{courseID: course, number: 2, semester: "Fall", year: 2024, room: 417, startTime: 1200, instructor: "Dr. Green"}),
		spring:   addSection(t, r, sectionSpec{courseID: course, number: 1, semester: "Spring", year: 2025, room: 416, startTime: 1000, instructor: "Dr. Brown"}),
	}
}

func TestEnrollmentRejectsSecondSectionOfSameCourseBeforeWriting(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)

	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("B")))

	err := f.r.Students.AddEnrollment(ctx, f.student, f.section2, models.LetterGrade("B"))
	hasCode(t, err, appErrors.ErrUniquenessConflict)
	assert.Contains(t, err.Error(), "section 1")

	err = f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("A"))
	hasCode(t, err, appErrors.ErrUniquenessConflict)

	student, err := f.r.Students.FindByID(ctx, f.student)
	require.NoError(t, err)
	assert.Len(t, student.Slice("sections"), 1)
	section2, err := f.r.Sections.FindByID(ctx, f.section2)
	require.NoError(t, err)
	assert.Empty(t, section2.Slice("students"))

	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.spring, models.PassFail(time.Now())))
	section1, err := f.r.Sections.FindByID(ctx, f.section1)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{f.student}, section1.Slice("students"))
}

func TestEnrollmentValidatesGradingAndSection(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)

	hasCode(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("D")), appErrors.ErrValidation)
	hasCode(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.Grading{Type: models.GradingPassFail}), appErrors.ErrValidation)
	hasCode(t, f.r.Students.AddEnrollment(ctx, f.student, primitive.NewObjectID(), models.LetterGrade("C")), appErrors.ErrReferenceNotFound)
}

func TestUnenrollRemovesBothSidesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("C")))

	n, err := f.r.Students.DeleteEnrollment(ctx, f.student, f.section1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	student, err := f.r.Students.FindByID(ctx, f.student)
	require.NoError(t, err)
	assert.Empty(t, student.Slice("sections"))
	section, err := f.r.Sections.FindByID(ctx, f.section1)
	require.NoError(t, err)
	assert.Empty(t, section.Slice("students"))

	n, err = f.r.Students.DeleteEnrollment(ctx, f.student, f.section1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListEnrollments(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("A")))

	rows, err := f.r.Students.ListEnrollments(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lovelace, Ada", rows[0].Student)
	assert.Equal(t, "Databases", rows[0].Course)
	assert.Equal(t, 1, rows[0].SectionNumber)
	assert.Equal(t, "Fall", rows[0].Semester)
	assert.Equal(t, 2024, rows[0].SectionYear)
	assert.Equal(t, models.GradingLetterGrade, rows[0].Grading.Type)
	assert.Equal(t, "A", rows[0].Grading.MinSatisfactory)
}

func TestSectionDeleteRefusedWhileStudentsEnrolled(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("A")))

	_, err := f.r.Sections.Delete(ctx, f.section1)
	hasCode(t, err, appErrors.ErrIntegrityRefusal)

	n, err := f.r.Sections.Delete(ctx, f.section2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStudentDeleteClearsRosters(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("A")))
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.spring, models.LetterGrade("A")))

	n, err := f.r.Students.Delete(ctx, f.student)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, id := range []primitive.ObjectID{f.section1, f.spring} {
		section, err := f.r.Sections.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, section.Slice("students"))
	}
}

// flakyRoster fails the removal or append of one section.
type flakyRoster struct {
	*SectionService
	failRemove primitive.ObjectID
	failAppend primitive.ObjectID
}

func (f flakyRoster) RemoveStudent(ctx context.Context, sectionID, studentID primitive.ObjectID) (int64, error) {
	if sectionID == f.failRemove {
		return 0, appErrors.Clone(appErrors.ErrStoreFailure, "roster update failed")
	}
	return f.SectionService.RemoveStudent(ctx, sectionID, studentID)
}

func (f flakyRoster) AppendStudent(ctx context.Context, sectionID, studentID primitive.ObjectID) (int64, error) {
	if sectionID == f.failAppend {
		return 0, errors.New("connection reset")
	}
	return f.SectionService.AppendStudent(ctx, sectionID, studentID)
}

func studentServiceWith(t *testing.T, r *Records, roster sectionRoster) *StudentService {
	t.Helper()
	students, err := r.Registry.Resolve("students")
	require.NoError(t, err)
	departments, err := r.Registry.Resolve("departments")
	require.NoError(t, err)
	courses, err := r.Registry.Resolve("courses")
	require.NoError(t, err)
	return NewStudentService(students, departments, roster, courses, nil, nil)
}

func TestStudentDeleteRestoresRostersWhenAPullFails(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("A")))
	require.NoError(t, f.r.Students.AddEnrollment(ctx, f.student, f.spring, models.LetterGrade("A")))
	grace := addStudent(t, f.r, "Hopper", "Grace")
	require.NoError(t, f.r.Students.AddEnrollment(ctx, grace, f.section1, models.LetterGrade("B")))

	// Rosters are pulled in store order, so section1 goes first and spring fails.
	svc := studentServiceWith(t, f.r, flakyRoster{SectionService: f.r.Sections, failRemove: f.spring})
	_, err := svc.Delete(ctx, f.student)
	hasCode(t, err, appErrors.ErrStoreFailure)

	_, err = f.r.Students.FindByID(ctx, f.student)
	require.NoError(t, err)

	section1, err := f.r.Sections.FindByID(ctx, f.section1)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{f.student, grace}, section1.Slice("students"), "roster order is kept")

	spring, err := f.r.Sections.FindByID(ctx, f.spring)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{f.student}, spring.Slice("students"))
}

func TestSectionInsertStudentKeepsPosition(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	grace := addStudent(t, f.r, "Hopper", "Grace")
	alan := addStudent(t, f.r, "Turing", "Alan")
	for _, id := range []primitive.ObjectID{grace, alan} {
		_, err := f.r.Sections.AppendStudent(ctx, f.section1, id)
		require.NoError(t, err)
	}

	n, err := f.r.Sections.InsertStudent(ctx, f.section1, f.student, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	section, err := f.r.Sections.FindByID(ctx, f.section1)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{grace, f.student, alan}, section.Slice("students"))
}

func TestEnrollmentPushIsUndoneWhenRosterAppendFails(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t)
	svc := studentServiceWith(t, f.r, flakyRoster{SectionService: f.r.Sections, failAppend: f.section1})

	err := svc.AddEnrollment(ctx, f.student, f.section1, models.LetterGrade("A"))
	require.Error(t, err)

	student, err := f.r.Students.FindByID(ctx, f.student)
	require.NoError(t, err)
	assert.Empty(t, student.Slice("sections"))
}

func TestListAllKeepsCoursesOfDeletedDepartment(t *testing.T) {
	ctx := context.Background()
	r := newTestRecords(t)
	deptID := addDepartment(t, r, "Computer Science", "CECS")
	addCourse(t, r, "Computer Science", 323, "Databases")

	departments, err := r.Registry.Resolve("departments")
	require.NoError(t, err)
	_, err = departments.Delete(ctx, deptID, nil)
	require.NoError(t, err)

	rows, err := r.Courses.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Unknown Department", rows[0]["department"])
}
