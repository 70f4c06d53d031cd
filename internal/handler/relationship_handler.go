package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/response"
)

const dateLayout = "2006-01-02"

type departmentMajors interface {
	AddMajor(ctx context.Context, departmentID primitive.ObjectID, major models.Major) error
	DeleteMajor(ctx context.Context, name string) error
	ListMajors(ctx context.Context) ([]models.MajorListing, error)
}

type studentRelationships interface {
	AddMajor(ctx context.Context, studentID primitive.ObjectID, name string, declared time.Time) error
	DeleteMajor(ctx context.Context, studentID primitive.ObjectID, name string) (int64, error)
	ListMajors(ctx context.Context) ([]models.StudentMajorListing, error)
	AddEnrollment(ctx context.Context, studentID, sectionID primitive.ObjectID, grading models.Grading) error
	DeleteEnrollment(ctx context.Context, studentID, sectionID primitive.ObjectID) (int64, error)
	ListEnrollments(ctx context.Context) ([]models.EnrollmentListing, error)
}

// RelationshipHandler exposes majors and enrollments.
type RelationshipHandler struct {
	departments departmentMajors
	students    studentRelationships
}

// NewRelationshipHandler constructs the handler.
func NewRelationshipHandler(departments departmentMajors, students studentRelationships) *RelationshipHandler {
	return &RelationshipHandler{departments: departments, students: students}
}

type declareMajorRequest struct {
	Name            string `json:"name" binding:"required"`
	DeclarationDate string `json:"declaration_date"`
}

type enrollRequest struct {
	SectionID       string `json:"section_id" binding:"required"`
	Type            string `json:"type" binding:"required"`
	ApplicationDate string `json:"application_date"`
	MinSatisfactory string `json:"min_satisfactory"`
}

// ListDepartmentMajors godoc
// @Summary List majors offered by departments
// @Tags Majors
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments/majors [get]
func (h *RelationshipHandler) ListDepartmentMajors(c *gin.Context) {
	rows, err := h.departments.ListMajors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, rows, len(rows))
}

// AddDepartmentMajor godoc
// @Summary Add a major to a department
// @Tags Majors
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body models.Major true "Major"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /departments/{id}/majors [post]
func (h *RelationshipHandler) AddDepartmentMajor(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var major models.Major
	if err := c.ShouldBindJSON(&major); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid major payload"))
		return
	}
	if err := h.departments.AddMajor(c.Request.Context(), id, major); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, major)
}

// DeleteDepartmentMajor godoc
// @Summary Remove a major nobody has declared
// @Tags Majors
// @Param name path string true "Major name"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /departments/majors/{name} [delete]
func (h *RelationshipHandler) DeleteDepartmentMajor(c *gin.Context) {
	if err := h.departments.DeleteMajor(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudentMajors godoc
// @Summary List declared majors
// @Tags Majors
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/majors [get]
func (h *RelationshipHandler) ListStudentMajors(c *gin.Context) {
	rows, err := h.students.ListMajors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, rows, len(rows))
}

// DeclareMajor godoc
// @Summary Declare a major for a student
// @Tags Majors
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body declareMajorRequest true "Major name and optional YYYY-MM-DD date"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/majors [post]
func (h *RelationshipHandler) DeclareMajor(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req declareMajorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid major payload"))
		return
	}
	declared, err := parseDate(req.DeclarationDate, "declaration_date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.students.AddMajor(c.Request.Context(), id, req.Name, declared); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"name": req.Name, "declaration_date": declared.Format(dateLayout)})
}

// WithdrawMajor godoc
// @Summary Withdraw a declared major
// @Tags Majors
// @Param id path string true "Student ID"
// @Param name path string true "Major name"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/majors/{name} [delete]
func (h *RelationshipHandler) WithdrawMajor(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := h.students.DeleteMajor(c.Request.Context(), id, c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"modified": n})
}

// ListEnrollments godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/enrollments [get]
func (h *RelationshipHandler) ListEnrollments(c *gin.Context) {
	rows, err := h.students.ListEnrollments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, rows, len(rows))
}

// Enroll godoc
// @Summary Enroll a student in a section
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body enrollRequest true "Section and grading option"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/enrollments [post]
func (h *RelationshipHandler) Enroll(c *gin.Context) {
	studentID, err := objectIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	sectionID, err := primitive.ObjectIDFromHex(req.SectionID)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "section_id must be a document identifier"))
		return
	}
	grading, err := gradingFrom(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.students.AddEnrollment(c.Request.Context(), studentID, sectionID, grading); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, models.Enrollment{SectionID: sectionID, Enrollment: grading})
}

// Unenroll godoc
// @Summary Remove an enrollment
// @Description Repeating the call modifies nothing
// @Tags Enrollments
// @Param id path string true "Student ID"
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments/{sectionId} [delete]
func (h *RelationshipHandler) Unenroll(c *gin.Context) {
	studentID, err := objectIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	sectionID, err := objectIDParam(c, "sectionId")
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := h.students.DeleteEnrollment(c.Request.Context(), studentID, sectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"modified": n})
}

func gradingFrom(req enrollRequest) (models.Grading, error) {
	switch models.GradingType(req.Type) {
	case models.GradingPassFail:
		applied, err := parseDate(req.ApplicationDate, "application_date")
		if err != nil {
			return models.Grading{}, err
		}
		return models.PassFail(applied), nil
	case models.GradingLetterGrade:
		return models.LetterGrade(req.MinSatisfactory), nil
	default:
		return models.Grading{}, appErrors.Clonef(appErrors.ErrValidation, "type must be %s or %s", models.GradingPassFail, models.GradingLetterGrade)
	}
}

// parseDate reads YYYY-MM-DD, defaulting to today.
func parseDate(raw, field string) (time.Time, error) {
	if raw == "" {
		y, m, d := time.Now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clonef(appErrors.ErrValidation, "%s must be formatted YYYY-MM-DD", field)
	}
	return t, nil
}
