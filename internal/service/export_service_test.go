package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloodan17/Course-Enrollment-Database/pkg/storage"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

func TestParseExportFormat(t *testing.T) {
	f, err := ParseExportFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, ExportPDF, f)
	f, err = ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportCSV, f)
	_, err = ParseExportFormat("xlsx")
	hasCode(t, err, appErrors.ErrValidation)
}

func TestExportRenderCSVJoinsReferences(t *testing.T) {
	r := newTestRecords(t)
	addDepartment(t, r, "Computer Science", "CECS")
	addCourse(t, r, "Computer Science", 323, "Databases")

	svc := NewExportService(r, nil, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 31, 15, 45, 0, 0, time.UTC) }
	result, err := svc.Render(context.Background(), "courses", ExportCSV)
	require.NoError(t, err)

	assert.Equal(t, "courses-20240131-154500.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, 1, result.Rows)
	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "_id,department,course_number,course_name,description,units", lines[0])
	assert.Contains(t, lines[1], "Computer Science,323,Databases")
}

func TestExportSaveWritesPDF(t *testing.T) {
	r := newTestRecords(t)
	addDepartment(t, r, "Computer Science", "CECS")
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	svc := NewExportService(r, files, nil, nil, nil)
	result, err := svc.Save(context.Background(), "departments", ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, result.Filename), result.Path)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestExportUnknownCollection(t *testing.T) {
	svc := NewExportService(newTestRecords(t), nil, nil, nil, nil)
	_, err := svc.Render(context.Background(), "faculty", ExportCSV)
	hasCode(t, err, appErrors.ErrNotFound)
	_, err = svc.Save(context.Background(), "courses", ExportCSV)
	hasCode(t, err, appErrors.ErrInternal)
}
