package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// sectionRoster is what enrollment maintenance needs from sections.
type sectionRoster interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Document, error)
	Find(ctx context.Context, filter bson.M) ([]models.Document, error)
	AppendStudent(ctx context.Context, sectionID, studentID primitive.ObjectID) (int64, error)
	InsertStudent(ctx context.Context, sectionID, studentID primitive.ObjectID, position int) (int64, error)
	RemoveStudent(ctx context.Context, sectionID, studentID primitive.ObjectID) (int64, error)
}

// rosterSlot remembers where a student sat in a section roster.
type rosterSlot struct {
	section  primitive.ObjectID
	position int
}

type displayNamer interface {
	DisplayName(ctx context.Context, ref interface{}) string
}

// StudentService owns students, their declared majors and their enrollments.
type StudentService struct {
	variantBase
	departments entityCollection
	sections    sectionRoster
	courses     displayNamer
	validate    *validator.Validate
	now         func() time.Time
}

// NewStudentService constructs the student variant.
func NewStudentService(students, departments entityCollection, sections sectionRoster, courses displayNamer, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{
		variantBase: newVariantBase(students, logger),
		departments: departments,
		sections:    sections,
		courses:     courses,
		validate:    validate,
		now:         time.Now,
	}
}

// Kind identifies the variant.
func (s *StudentService) Kind() schema.Variant { return schema.VariantStudent }

// Create inserts a student with no majors and no enrollments.
func (s *StudentService) Create(ctx context.Context, values repository.Values) (primitive.ObjectID, error) {
	return s.coll.Create(ctx, values, s)
}

// Delete removes a student after taking them off every section roster.
func (s *StudentService) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return s.coll.Delete(ctx, id, s)
}

// AfterInsert does nothing; a new student has no enrollments to link.
func (s *StudentService) AfterInsert(context.Context, primitive.ObjectID, models.Document) error {
	return nil
}

// BeforeDelete pulls the student from every roster. If a pull fails, the rosters
// already pulled get the student back at the same position and the delete is
// refused.
func (s *StudentService) BeforeDelete(ctx context.Context, doc models.Document) error {
	studentID, err := documentID(doc)
	if err != nil {
		return err
	}
	enrolled, err := s.sections.Find(ctx, bson.M{"students": studentID})
	if err != nil {
		return err
	}
	pulled := make([]rosterSlot, 0, len(enrolled))
	for _, section := range enrolled {
		sectionID, err := documentID(section)
		if err != nil {
			return err
		}
		slot := rosterSlot{section: sectionID, position: rosterPosition(section, studentID)}
		if _, err := s.sections.RemoveStudent(ctx, sectionID, studentID); err != nil {
			s.restoreRosters(ctx, studentID, pulled)
			return err
		}
		pulled = append(pulled, slot)
	}
	return nil
}

func rosterPosition(section models.Document, studentID primitive.ObjectID) int {
	roster := section.Slice("students")
	for i, id := range roster {
		if models.Equal(id, studentID) {
			return i
		}
	}
	return len(roster)
}

func (s *StudentService) restoreRosters(ctx context.Context, studentID primitive.ObjectID, slots []rosterSlot) {
	for _, slot := range slots {
		if _, err := s.sections.InsertStudent(ctx, slot.section, studentID, slot.position); err != nil {
			s.logger.Error("roster not restored", zap.String("student_id", studentID.Hex()),
				zap.String("section_id", slot.section.Hex()), zap.Error(err))
		}
	}
}

// AddMajor declares a major offered by some department. The declaration date may
// not be in the future.
func (s *StudentService) AddMajor(ctx context.Context, studentID primitive.ObjectID, name string, declared time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "major name is required")
	}
	if dateOf(declared).After(dateOf(s.now())) {
		return appErrors.Clone(appErrors.ErrValidation, "declaration date cannot be in the future")
	}
	student, err := s.coll.FindByID(ctx, studentID)
	if err != nil {
		return err
	}
	offered, err := s.departments.Count(ctx, bson.M{"majors.name": name})
	if err != nil {
		return err
	}
	if offered == 0 {
		return appErrors.Clonef(appErrors.ErrReferenceNotFound, "no department offers major %q", name)
	}
	for _, item := range student.Slice("majors") {
		if m, ok := models.AsMap(item); ok && m["name"] == name {
			return appErrors.Clonef(appErrors.ErrUniquenessConflict, "major %q is already declared", name)
		}
	}
	declaration := models.DeclaredMajor{Name: name, DeclarationDate: declared.UTC()}
	if _, err := s.coll.Push(ctx, studentID, "majors", declaration.Document()); err != nil {
		return err
	}
	s.logger.Info("major declared", zap.String("student_id", studentID.Hex()), zap.String("major", name))
	return nil
}

// DeleteMajor withdraws a declaration and reports how many students changed.
func (s *StudentService) DeleteMajor(ctx context.Context, studentID primitive.ObjectID, name string) (int64, error) {
	if _, err := s.coll.FindByID(ctx, studentID); err != nil {
		return 0, err
	}
	return s.coll.Pull(ctx, studentID, "majors", bson.M{"name": name})
}

// ListMajors returns every declaration with its student.
func (s *StudentService) ListMajors(ctx context.Context) ([]models.StudentMajorListing, error) {
	students, err := s.students(ctx)
	if err != nil {
		return nil, err
	}
	rows := []models.StudentMajorListing{}
	for _, st := range students {
		for _, m := range st.Majors {
			rows = append(rows, models.StudentMajorListing{
				Student:         st.DisplayName(),
				Email:           st.Email,
				Major:           m.Name,
				DeclarationDate: m.DeclarationDate,
			})
		}
	}
	return rows, nil
}

// AddEnrollment enrolls the student in a section. A second section of the same
// course in the same semester and year is rejected before anything is written. The
// roster append follows the enrollment push; if it fails the push is undone.
func (s *StudentService) AddEnrollment(ctx context.Context, studentID, sectionID primitive.ObjectID, grading models.Grading) error {
	if err := s.validate.Struct(grading); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			"PassFail needs an application date, LetterGrade a minimum grade of A, B or C")
	}
	student, err := s.coll.FindByID(ctx, studentID)
	if err != nil {
		return err
	}
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			return appErrors.Clone(appErrors.ErrReferenceNotFound, "section not found")
		}
		return err
	}
	if err := s.checkEnrollmentConflict(ctx, student, section, sectionID); err != nil {
		return err
	}

	enrollment := models.Enrollment{SectionID: sectionID, Enrollment: grading}
	if _, err := s.coll.Push(ctx, studentID, "sections", enrollment.Document()); err != nil {
		return err
	}
	n, err := s.sections.AppendStudent(ctx, sectionID, studentID)
	if err == nil && n == 0 {
		err = appErrors.Clone(appErrors.ErrReferenceNotFound, "section vanished during enrollment")
	}
	if err != nil {
		if _, undoErr := s.coll.Pull(ctx, studentID, "sections", bson.M{"section_id": sectionID}); undoErr != nil {
			s.logger.Error("enrollment left without roster entry", zap.String("student_id", studentID.Hex()),
				zap.String("section_id", sectionID.Hex()), zap.Error(undoErr))
		}
		return err
	}
	s.logger.Info("student enrolled", zap.String("student_id", studentID.Hex()), zap.String("section_id", sectionID.Hex()))
	return nil
}

func (s *StudentService) checkEnrollmentConflict(ctx context.Context, student, section models.Document, sectionID primitive.ObjectID) error {
	for _, item := range student.Slice("sections") {
		enrollment, ok := models.AsMap(item)
		if !ok {
			continue
		}
		enrolledID, ok := enrollment["section_id"].(primitive.ObjectID)
		if !ok {
			continue
		}
		if enrolledID == sectionID {
			return appErrors.Clone(appErrors.ErrUniquenessConflict, "student is already enrolled in this section")
		}
		other, err := s.sections.FindByID(ctx, enrolledID)
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			continue
		}
		if err != nil {
			return err
		}
		if models.Equal(other["course"], section["course"]) &&
			models.Equal(other["semester"], section["semester"]) &&
			models.Equal(other["section_year"], section["section_year"]) {
			number, _ := other.Int("section_number")
			year, _ := section.Int("section_year")
			return appErrors.Clonef(appErrors.ErrUniquenessConflict,
				"student is already enrolled in section %d of this course for %s %d", number, section.String("semester"), year)
		}
	}
	return nil
}

// DeleteEnrollment removes the enrollment and the roster entry and reports how
// many documents changed; repeating it changes none.
func (s *StudentService) DeleteEnrollment(ctx context.Context, studentID, sectionID primitive.ObjectID) (int64, error) {
	fromStudent, err := s.coll.Pull(ctx, studentID, "sections", bson.M{"section_id": sectionID})
	if err != nil {
		return 0, err
	}
	fromSection, err := s.sections.RemoveStudent(ctx, sectionID, studentID)
	if err != nil {
		return fromStudent, err
	}
	return fromStudent + fromSection, nil
}

// ListEnrollments returns every enrollment with its student and section.
func (s *StudentService) ListEnrollments(ctx context.Context) ([]models.EnrollmentListing, error) {
	students, err := s.students(ctx)
	if err != nil {
		return nil, err
	}
	rows := []models.EnrollmentListing{}
	for _, st := range students {
		for _, e := range st.Sections {
			row := models.EnrollmentListing{
				Student:   st.DisplayName(),
				Email:     st.Email,
				SectionID: e.SectionID.Hex(),
				Course:    s.courses.DisplayName(ctx, nil),
				Grading:   e.Enrollment,
			}
			section, err := s.sections.FindByID(ctx, e.SectionID)
			switch {
			case err == nil:
				var typed models.Section
				if err := models.Decode(section, &typed); err != nil {
					return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unreadable section")
				}
				row.Course = s.courses.DisplayName(ctx, typed.Course)
				row.SectionNumber = typed.SectionNumber
				row.Semester = typed.Semester
				row.SectionYear = typed.SectionYear
			case !appErrors.HasCode(err, appErrors.ErrNotFound.Code):
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *StudentService) students(ctx context.Context) ([]models.Student, error) {
	docs, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]models.Student, 0, len(docs))
	for _, doc := range docs {
		var st models.Student
		if err := models.Decode(doc, &st); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unreadable student")
		}
		out = append(out, st)
	}
	return out, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
