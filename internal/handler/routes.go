package handler

import "github.com/gin-gonic/gin"

// Handlers groups the API handlers mounted under the API prefix.
type Handlers struct {
	Auth          *AuthHandler
	Records       *RecordsHandler
	Relationships *RelationshipHandler
}

// Register mounts the API on group. Everything except token issuance sits behind
// protect.
func Register(group *gin.RouterGroup, h Handlers, protect gin.HandlerFunc) {
	group.POST("/auth/token", h.Auth.Login)

	secured := group.Group("")
	secured.Use(protect)
	secured.GET("/auth/me", h.Auth.Me)

	records := secured.Group("/records/:collection")
	records.GET("", h.Records.List)
	records.POST("", h.Records.Create)
	records.POST("/lookup", h.Records.Lookup)
	records.GET("/export", h.Records.Export)
	records.DELETE("/:id", h.Records.Delete)

	departments := secured.Group("/departments")
	departments.GET("/majors", h.Relationships.ListDepartmentMajors)
	departments.POST("/:id/majors", h.Relationships.AddDepartmentMajor)
	departments.DELETE("/majors/:name", h.Relationships.DeleteDepartmentMajor)

	students := secured.Group("/students")
	students.GET("/majors", h.Relationships.ListStudentMajors)
	students.GET("/enrollments", h.Relationships.ListEnrollments)
	students.POST("/:id/majors", h.Relationships.DeclareMajor)
	students.DELETE("/:id/majors/:name", h.Relationships.WithdrawMajor)
	students.POST("/:id/enrollments", h.Relationships.Enroll)
	students.DELETE("/:id/enrollments/:sectionId", h.Relationships.Unenroll)
}
