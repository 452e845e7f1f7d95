package registry

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	domreg "github.com/prodreg/reestr/internal/domain/registry"
)

// scanRows converts a dynamic result set into domain rows, preserving column
// order. Dates become date values (ISO-8601 on the wire) and decimals become
// floats; the column set is schema-driven, so typing follows the database
// column types rather than a compiled-in record shape.
func scanRows(rows *sqlx.Rows) ([]*domreg.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	var out []*domreg.Row
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		row := domreg.NewRow()
		for i, col := range columns {
			row.Set(col, convertValue(raw[i], types[i]))
		}
		out = append(out, row)
	}
	return out, rows.Err() //nolint:wrapcheck
}

func convertValue(v any, colType *sql.ColumnType) domreg.Value {
	if v == nil {
		return domreg.Null()
	}

	dbType := ""
	if colType != nil {
		dbType = strings.ToUpper(colType.DatabaseTypeName())
	}

	switch val := v.(type) {
	case time.Time:
		if dbType == "DATE" {
			return domreg.Date(val)
		}
		return domreg.Time(val)
	case bool:
		return domreg.Bool(val)
	case int64:
		return domreg.Int(val)
	case int32:
		return domreg.Int(int64(val))
	case float64:
		return domreg.Float(val)
	case float32:
		return domreg.Float(float64(val))
	case []byte:
		return textOrNumeric(string(val), dbType)
	case string:
		return textOrNumeric(val, dbType)
	default:
		return domreg.String(fmt.Sprintf("%v", v))
	}
}

// textOrNumeric parses decimal columns that the driver surfaces as text.
func textOrNumeric(s, dbType string) domreg.Value {
	switch dbType {
	case "NUMERIC", "DECIMAL", "FLOAT4", "FLOAT8":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return domreg.Float(f)
		}
	}
	return domreg.String(s)
}
