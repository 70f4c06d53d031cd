package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	memory := store.NewMemoryStore()
	departments := NewEntityCollection(memory.Collection("departments"), schema.Departments(), registry)
	courses := NewEntityCollection(memory.Collection("courses"), schema.Courses(), registry)
	registry.Register("departments", departments)
	registry.Register("courses", courses)

	got, err := registry.Resolve("departments")
	require.NoError(t, err)
	assert.Same(t, departments, got)
	assert.Equal(t, []string{"courses", "departments"}, registry.Names())

	_, err = registry.Resolve("faculty")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
