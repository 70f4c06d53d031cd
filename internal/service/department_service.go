package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// DepartmentService owns departments and the majors embedded in them.
type DepartmentService struct {
	variantBase
	students entityCollection
	validate *validator.Validate
}

// NewDepartmentService constructs the department variant. students is consulted
// before a major is removed.
func NewDepartmentService(departments, students entityCollection, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	return &DepartmentService{variantBase: newVariantBase(departments, logger), students: students, validate: validate}
}

// Kind identifies the variant.
func (s *DepartmentService) Kind() schema.Variant { return schema.VariantDepartment }

// Create inserts a department.
func (s *DepartmentService) Create(ctx context.Context, values repository.Values) (primitive.ObjectID, error) {
	return s.coll.Create(ctx, values, s)
}

// Delete removes a department that offers no courses and no majors.
func (s *DepartmentService) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return s.coll.Delete(ctx, id, s)
}

// AfterInsert has nothing to link: departments reference no other document.
func (s *DepartmentService) AfterInsert(_ context.Context, id primitive.ObjectID, doc models.Document) error {
	s.logger.Debug("department added", zap.String("id", id.Hex()), zap.String("name", doc.String("name")))
	return nil
}

// BeforeDelete refuses while the department still owns courses or majors.
func (s *DepartmentService) BeforeDelete(_ context.Context, doc models.Document) error {
	courses := len(doc.Slice("courses"))
	majors := len(doc.Slice("majors"))
	if courses == 0 && majors == 0 {
		return nil
	}
	var owned []string
	if courses > 0 {
		owned = append(owned, plural(courses, "course"))
	}
	if majors > 0 {
		owned = append(owned, plural(majors, "major"))
	}
	return appErrors.Clonef(appErrors.ErrIntegrityRefusal,
		"department %s still has %s; delete them first", doc.String("name"), strings.Join(owned, " and "))
}

// AddMajor embeds major in the department. Major names are unique across all
// departments.
func (s *DepartmentService) AddMajor(ctx context.Context, departmentID primitive.ObjectID, major models.Major) error {
	major.Name = strings.TrimSpace(major.Name)
	if err := s.validate.Struct(major); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "major needs a name and a description")
	}
	if _, err := s.coll.FindByID(ctx, departmentID); err != nil {
		return err
	}
	taken, err := s.coll.Count(ctx, bson.M{"majors.name": major.Name})
	if err != nil {
		return err
	}
	if taken > 0 {
		return appErrors.Clonef(appErrors.ErrUniquenessConflict, "major %q is already offered", major.Name)
	}
	if _, err := s.coll.Push(ctx, departmentID, "majors", major.Document()); err != nil {
		return err
	}
	s.logger.Info("major added", zap.String("department_id", departmentID.Hex()), zap.String("major", major.Name))
	return nil
}

// DeleteMajor removes the named major from whichever department offers it,
// refusing while any student has declared it.
func (s *DepartmentService) DeleteMajor(ctx context.Context, name string) error {
	owners, err := s.coll.Find(ctx, bson.M{"majors.name": name})
	if err != nil {
		return err
	}
	if len(owners) == 0 {
		return appErrors.Clonef(appErrors.ErrNotFound, "major %q not found", name)
	}
	declared, err := s.students.Count(ctx, bson.M{"majors.name": name})
	if err != nil {
		return err
	}
	if declared > 0 {
		return appErrors.Clonef(appErrors.ErrIntegrityRefusal,
			"%s declared major %q; remove the declarations first", plural(int(declared), "student"), name)
	}
	departmentID, err := documentID(owners[0])
	if err != nil {
		return err
	}
	if _, err := s.coll.Pull(ctx, departmentID, "majors", bson.M{"name": name}); err != nil {
		return err
	}
	s.logger.Info("major removed", zap.String("department_id", departmentID.Hex()), zap.String("major", name))
	return nil
}

// ListMajors returns every major with its department.
func (s *DepartmentService) ListMajors(ctx context.Context) ([]models.MajorListing, error) {
	departments, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	rows := []models.MajorListing{}
	for _, doc := range departments {
		for _, item := range doc.Slice("majors") {
			major, ok := models.AsMap(item)
			if !ok {
				continue
			}
			name, _ := major["name"].(string)
			description, _ := major["description"].(string)
			rows = append(rows, models.MajorListing{Department: doc.String("name"), Name: name, Description: description})
		}
	}
	return rows, nil
}

// AppendCourse adds courseID to the department's course list.
func (s *DepartmentService) AppendCourse(ctx context.Context, departmentID, courseID primitive.ObjectID) (int64, error) {
	return s.coll.Push(ctx, departmentID, "courses", courseID)
}

// RemoveCourse drops courseID from the department's course list.
func (s *DepartmentService) RemoveCourse(ctx context.Context, departmentID, courseID primitive.ObjectID) (int64, error) {
	return s.coll.Pull(ctx, departmentID, "courses", courseID)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
