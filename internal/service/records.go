package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// RecordsOptions carries the collaborators shared by every collection. Zero values
// disable the matching concern.
type RecordsOptions struct {
	Logger    *zap.Logger
	Validator *validator.Validate
	Cache     repository.ListCache
	CacheTTL  time.Duration
	Audit     repository.AuditRecorder
	Metrics   repository.StoreObserver
}

// Records is the bootstrapped set of variants over one store.
type Records struct {
	Registry    *repository.Registry
	Departments *DepartmentService
	Courses     *CourseService
	Sections    *SectionService
	Students    *StudentService

	entities map[string]Entity
}

// NewRecords builds and registers a collection per variant, wires the variant
// services and installs validators and unique indexes.
func NewRecords(ctx context.Context, st store.Store, opts RecordsOptions) (*Records, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := opts.Validator
	if validate == nil {
		validate = validator.New()
	}

	collOpts := []repository.Option{repository.WithLogger(logger), repository.WithValidator(validate)}
	if opts.Cache != nil {
		collOpts = append(collOpts, repository.WithCache(opts.Cache, opts.CacheTTL))
	}
	if opts.Audit != nil {
		collOpts = append(collOpts, repository.WithAudit(opts.Audit))
	}
	if opts.Metrics != nil {
		collOpts = append(collOpts, repository.WithMetrics(opts.Metrics))
	}

	registry := repository.NewRegistry()
	collections := make(map[schema.Variant]*repository.EntityCollection, len(schema.Variants))
	for _, variant := range schema.Variants {
		s, err := schemaFor(variant)
		if err != nil {
			return nil, err
		}
		c := repository.NewEntityCollection(st.Collection(s.Collection), s, registry, collOpts...)
		registry.Register(s.Collection, c)
		collections[variant] = c
	}

	departments := NewDepartmentService(collections[schema.VariantDepartment], collections[schema.VariantStudent], validate, logger)
	sections := NewSectionService(collections[schema.VariantSection], logger)
	r := &Records{
		Registry:    registry,
		Departments: departments,
		Courses:     NewCourseService(collections[schema.VariantCourse], departments, collections[schema.VariantSection], logger),
		Sections:    sections,
		Students: NewStudentService(collections[schema.VariantStudent], collections[schema.VariantDepartment],
			sections, collections[schema.VariantCourse], validate, logger),
	}
	r.entities = map[string]Entity{
		r.Departments.Schema().Collection: r.Departments,
		r.Courses.Schema().Collection:     r.Courses,
		r.Sections.Schema().Collection:    r.Sections,
		r.Students.Schema().Collection:    r.Students,
	}

	for _, variant := range schema.Variants {
		if err := collections[variant].Setup(ctx); err != nil {
			return nil, err
		}
	}
	logger.Info("records ready", zap.Strings("collections", registry.Names()))
	return r, nil
}

// schemaFor maps every variant to its declaration.
func schemaFor(variant schema.Variant) (*schema.AttributeSchema, error) {
	switch variant {
	case schema.VariantDepartment:
		return schema.Departments(), nil
	case schema.VariantCourse:
		return schema.Courses(), nil
	case schema.VariantSection:
		return schema.Sections(), nil
	case schema.VariantStudent:
		return schema.Students(), nil
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
}

// Entity returns the variant stored in collection.
func (r *Records) Entity(collection string) (Entity, error) {
	e, ok := r.entities[collection]
	if !ok {
		return nil, appErrors.Clonef(appErrors.ErrNotFound, "unknown collection %q", collection)
	}
	return e, nil
}

// Entities lists the variants in dependency order.
func (r *Records) Entities() []Entity {
	return []Entity{r.Departments, r.Courses, r.Sections, r.Students}
}
