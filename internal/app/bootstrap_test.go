package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloodan17/Course-Enrollment-Database/internal/service"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/config"
)

func TestOpenWiresRecordsAndExports(t *testing.T) {
	cfg := &config.Config{Export: config.ExportConfig{Dir: t.TempDir()}}

	res, err := Open(context.Background(), cfg, store.NewMemoryStore(), nil, service.NewMetricsService())
	require.NoError(t, err)
	defer res.Close()

	require.NotNil(t, res.Records)
	_, err = res.Records.Entity("sections")
	require.NoError(t, err)

	result, err := res.Exporter.Save(context.Background(), "departments", service.ExportCSV)
	require.NoError(t, err)
	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "_id,name,abbreviation")
}

func TestOpenWithoutExportDirStreamsOnly(t *testing.T) {
	res, err := Open(context.Background(), &config.Config{}, store.NewMemoryStore(), nil, nil)
	require.NoError(t, err)
	defer res.Close()

	_, err = res.Exporter.Save(context.Background(), "departments", service.ExportCSV)
	assert.Error(t, err)

	rendered, err := res.Exporter.Render(context.Background(), "departments", service.ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, 0, rendered.Rows)
}
