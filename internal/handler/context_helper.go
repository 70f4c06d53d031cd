package handler

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// objectIDParam reads a hex ObjectID path parameter.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, error) {
	raw := c.Param(name)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, appErrors.Clonef(appErrors.ErrValidation, "%s must be a document identifier, got %q", name, raw)
	}
	return id, nil
}
