package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// courseCatalog keeps a department's course list in step with the courses collection.
type courseCatalog interface {
	AppendCourse(ctx context.Context, departmentID, courseID primitive.ObjectID) (int64, error)
	RemoveCourse(ctx context.Context, departmentID, courseID primitive.ObjectID) (int64, error)
}

// CourseService owns courses and their membership in a department.
type CourseService struct {
	variantBase
	departments courseCatalog
	sections    entityCollection
}

// NewCourseService constructs the course variant.
func NewCourseService(courses entityCollection, departments courseCatalog, sections entityCollection, logger *zap.Logger) *CourseService {
	return &CourseService{variantBase: newVariantBase(courses, logger), departments: departments, sections: sections}
}

// Kind identifies the variant.
func (s *CourseService) Kind() schema.Variant { return schema.VariantCourse }

// Create inserts a course and lists it under its department.
func (s *CourseService) Create(ctx context.Context, values repository.Values) (primitive.ObjectID, error) {
	return s.coll.Create(ctx, values, s)
}

// Delete removes a course that has no sections.
func (s *CourseService) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return s.coll.Delete(ctx, id, s)
}

// AfterInsert appends the new course to its department.
func (s *CourseService) AfterInsert(ctx context.Context, id primitive.ObjectID, doc models.Document) error {
	departmentID, ok := doc["department"].(primitive.ObjectID)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "course has no department")
	}
	n, err := s.departments.AppendCourse(ctx, departmentID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.Clonef(appErrors.ErrReferenceNotFound, "department %s no longer exists", departmentID.Hex())
	}
	return nil
}

// BeforeDelete counts dependent sections before touching the department, so a
// refused delete leaves both documents as they were.
func (s *CourseService) BeforeDelete(ctx context.Context, doc models.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	sections, err := s.sections.Count(ctx, bson.M{"course": id})
	if err != nil {
		return err
	}
	if sections > 0 {
		return appErrors.Clonef(appErrors.ErrIntegrityRefusal,
			"course %s still has %s; delete them first", doc.String("course_name"), plural(int(sections), "section"))
	}
	departmentID, ok := doc["department"].(primitive.ObjectID)
	if !ok {
		return nil
	}
	n, err := s.departments.RemoveCourse(ctx, departmentID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		s.logger.Warn("course was not listed under its department", zap.String("id", id.Hex()), zap.String("department_id", departmentID.Hex()))
	}
	return nil
}
