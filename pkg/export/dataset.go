package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// FromRecords flattens listing rows into a dataset. Headers follow the given order;
// keys not listed are appended alphabetically so nothing is silently dropped.
func FromRecords(headers []string, records []map[string]interface{}) Dataset {
	seen := make(map[string]struct{}, len(headers))
	cols := make([]string, 0, len(headers))
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		cols = append(cols, h)
	}

	var extra []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	cols = append(cols, extra...)

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		row := make(map[string]string, len(cols))
		for _, col := range cols {
			row[col] = Cell(rec[col])
		}
		rows = append(rows, row)
	}
	return Dataset{Headers: cols, Rows: rows}
}

// Cell renders a single stored value as text.
func Cell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case primitive.ObjectID:
		return val.Hex()
	case time.Time:
		return val.Format("2006-01-02")
	case primitive.DateTime:
		return val.Time().UTC().Format("2006-01-02")
	case []interface{}:
		return joinCells(val)
	case primitive.A:
		return joinCells(val)
	case []string:
		return strings.Join(val, "; ")
	case map[string]interface{}:
		return mapCell(val)
	case primitive.M:
		return mapCell(val)
	default:
		return fmt.Sprint(val)
	}
}

func joinCells(items []interface{}) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, Cell(item))
	}
	return strings.Join(parts, "; ")
}

func mapCell(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+Cell(m[k]))
	}
	return strings.Join(parts, " ")
}
