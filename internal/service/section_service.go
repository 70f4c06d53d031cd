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

// SectionService owns sections and their student rosters.
type SectionService struct {
	variantBase
}

// NewSectionService constructs the section variant.
func NewSectionService(sections entityCollection, logger *zap.Logger) *SectionService {
	return &SectionService{variantBase: newVariantBase(sections, logger)}
}

// Kind identifies the variant.
func (s *SectionService) Kind() schema.Variant { return schema.VariantSection }

// Create inserts a section with an empty roster.
func (s *SectionService) Create(ctx context.Context, values repository.Values) (primitive.ObjectID, error) {
	return s.coll.Create(ctx, values, s)
}

// Delete removes a section nobody is enrolled in.
func (s *SectionService) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return s.coll.Delete(ctx, id, s)
}

// AfterInsert does nothing; the course does not list its sections.
func (s *SectionService) AfterInsert(context.Context, primitive.ObjectID, models.Document) error {
	return nil
}

// BeforeDelete refuses while students are enrolled.
func (s *SectionService) BeforeDelete(_ context.Context, doc models.Document) error {
	if enrolled := len(doc.Slice("students")); enrolled > 0 {
		return appErrors.Clonef(appErrors.ErrIntegrityRefusal,
			"section has %s enrolled; unenroll them first", plural(enrolled, "student"))
	}
	return nil
}

// AppendStudent adds studentID to the roster.
func (s *SectionService) AppendStudent(ctx context.Context, sectionID, studentID primitive.ObjectID) (int64, error) {
	return s.coll.Push(ctx, sectionID, "students", studentID)
}

// InsertStudent puts studentID back into the roster at position.
func (s *SectionService) InsertStudent(ctx context.Context, sectionID, studentID primitive.ObjectID, position int) (int64, error) {
	return s.coll.Push(ctx, sectionID, "students", bson.M{"$each": bson.A{studentID}, "$position": position})
}

// RemoveStudent drops studentID from the roster and reports whether it changed.
func (s *SectionService) RemoveStudent(ctx context.Context, sectionID, studentID primitive.ObjectID) (int64, error) {
	return s.coll.Pull(ctx, sectionID, "students", studentID)
}
