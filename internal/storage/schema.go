package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// Column is one exported column: its header name, whether it is coerced
// to an integer in typed outputs, and the listing field it reads.
type Column struct {
	Name    string
	Numeric bool
	value   func(l *types.Listing) types.Field
}

// Value returns the column's field of l.
func (c Column) Value(l *types.Listing) types.Field {
	return c.value(l)
}

var (
	colMarque  = Column{Name: "Marque", value: func(l *types.Listing) types.Field { return l.Marque }}
	colBrand   = Column{Name: "Brand", value: func(l *types.Listing) types.Field { return l.Brand }}
	colModel   = Column{Name: "Model", value: func(l *types.Listing) types.Field { return l.Model }}
	colCarType = Column{Name: "CarType", value: func(l *types.Listing) types.Field { return l.CarType }}
	colFuel    = Column{Name: "FuelType", value: func(l *types.Listing) types.Field { return l.Fuel }}
	colGearbox = Column{Name: "Gearbox", value: func(l *types.Listing) types.Field { return l.Gearbox }}
	colYear    = Column{Name: "ManufacturingDate", value: func(l *types.Listing) types.Field { return l.Year }}
	colEngine  = Column{Name: "Engine_l", value: func(l *types.Listing) types.Field { return l.Engine }}
	colPower   = Column{Name: "Power_kW", Numeric: true, value: func(l *types.Listing) types.Field { return l.Power }}
	colMileage = Column{Name: "Mileage_km", Numeric: true, value: func(l *types.Listing) types.Field { return l.Mileage }}
	colPrice   = Column{Name: "Price_euro", Numeric: true, value: func(l *types.Listing) types.Field { return l.Price }}
)

// Columns returns the ordered columns of a schema variant.
func Columns(schema string) ([]Column, error) {
	tail := []Column{colCarType, colFuel, colGearbox, colYear, colEngine, colPower, colMileage, colPrice}
	switch schema {
	case config.SchemaCombined, "":
		return append([]Column{colMarque}, tail...), nil
	case config.SchemaSplit:
		return append([]Column{colBrand, colModel}, tail...), nil
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

// Header returns the column names in schema order.
func Header(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Row renders l as text cells. Null fields are empty cells.
func Row(cols []Column, l *types.Listing) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Value(l).String()
	}
	return out
}

// Coerce returns nil for a null field, an int64 for a numeric column whose
// text is an integer, and the text otherwise.
func Coerce(c Column, f types.Field) any {
	if f.IsNull() {
		return nil
	}
	if c.Numeric {
		if n, err := strconv.ParseInt(f.Value, 10, 64); err == nil {
			return n
		}
	}
	return f.Value
}

// record is a listing as an ordered set of typed column values.
type record struct {
	cols []Column
	vals []any
}

func newRecord(cols []Column, l *types.Listing) record {
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = Coerce(c, c.Value(l))
	}
	return record{cols: cols, vals: vals}
}

// MarshalJSON writes the object keys in column order.
func (r record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
