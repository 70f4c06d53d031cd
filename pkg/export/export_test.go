package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFromRecordsKeepsOrderAndAppendsExtras(t *testing.T) {
	id := primitive.NewObjectID()
	records := []map[string]interface{}{
		{"_id": id, "name": "Computer Science", "office": int32(301), "zeta": "z"},
		{"_id": id, "name": "Mathematics", "alpha": "a", "courses": primitive.A{"CECS 323", "CECS 326"}},
	}

	data := FromRecords([]string{"name", "office", "courses"}, records)

	assert.Equal(t, []string{"name", "office", "courses", "_id", "alpha", "zeta"}, data.Headers)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "301", data.Rows[0]["office"])
	assert.Equal(t, id.Hex(), data.Rows[0]["_id"])
	assert.Equal(t, "", data.Rows[0]["courses"])
	assert.Equal(t, "CECS 323; CECS 326", data.Rows[1]["courses"])
}

func TestCellFormatsDatesAndEmbeddedDocuments(t *testing.T) {
	declared := time.Date(2023, time.August, 21, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2023-08-21", Cell(declared))
	assert.Equal(t, "2023-08-21", Cell(primitive.NewDateTimeFromTime(declared)))
	assert.Equal(t, "description=Systems name=Computer Science",
		Cell(primitive.M{"name": "Computer Science", "description": "Systems"}))
}

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"name", "abbreviation"},
		Rows: []map[string]string{
			{"name": "Computer Science", "abbreviation": "CECS"},
			{"name": "Mathematics, Applied", "abbreviation": "MATH"},
		},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	assert.Equal(t, []string{"name,abbreviation", "Computer Science,CECS", `"Mathematics, Applied",MATH`}, lines)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.ErrorIs(t, err, errNoColumns)
}

func TestCSVExporterWriteSeparatorAndMissingCells(t *testing.T) {
	var buf bytes.Buffer
	exporter := &CSVExporter{Comma: ';'}
	err := exporter.Write(&buf, Dataset{
		Headers: []string{"last_name", "first_name", "email"},
		Rows:    []map[string]string{{"last_name": "Nguyen", "first_name": "An"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "last_name;first_name;email\nNguyen;An;\n", buf.String())
}

func TestPDFExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"course", "section_number", "semester", "section_year", "building", "room", "schedule"},
		Rows: []map[string]string{{
			"course": "Database Fundamentals", "section_number": "1", "semester": "Fall",
			"section_year": "2024", "building": "ECS", "room": "416", "schedule": "MW",
		}},
	}

	out, err := NewPDFExporter().Render(data, "sections")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
