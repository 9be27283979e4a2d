package types

import "strings"

// Field is an optional text value extracted from a listing block.
// A zero Field is null.
type Field struct {
	Value string
	Valid bool
}

// Null is the absent field value.
var Null = Field{}

// Text returns a non-null field holding s.
func Text(s string) Field {
	return Field{Value: s, Valid: true}
}

// String returns the field value, or "" for a null field.
func (f Field) String() string {
	if !f.Valid {
		return ""
	}
	return f.Value
}

// IsNull reports whether the field is absent.
func (f Field) IsNull() bool { return !f.Valid }

// Trim returns the field with surrounding whitespace removed.
// A value that trims to nothing becomes null.
func (f Field) Trim() Field {
	if !f.Valid {
		return f
	}
	v := strings.TrimSpace(f.Value)
	if v == "" {
		return Null
	}
	return Text(v)
}

// Listing is one scraped car-sale advertisement.
type Listing struct {
	Marque  Field
	Brand   Field
	Model   Field
	Engine  Field
	CarType Field
	Year    Field
	Fuel    Field
	Gearbox Field
	Power   Field
	Mileage Field
	Price   Field

	// Page is the 1-based index of the page the listing was found on.
	Page int

	// Position is the 0-based order of the listing anchor on its page.
	Position int
}

// Fields returns pointers to every named field keyed by field name,
// so transforms can walk a listing without reflection.
func (l *Listing) Fields() map[string]*Field {
	return map[string]*Field{
		"marque":   &l.Marque,
		"brand":    &l.Brand,
		"model":    &l.Model,
		"engine":   &l.Engine,
		"car_type": &l.CarType,
		"year":     &l.Year,
		"fuel":     &l.Fuel,
		"gearbox":  &l.Gearbox,
		"power":    &l.Power,
		"mileage":  &l.Mileage,
		"price":    &l.Price,
	}
}

// NullCount returns how many of the nine extracted fields are null.
// Brand and Model are derived and not counted.
func (l *Listing) NullCount() int {
	n := 0
	for _, f := range []Field{l.Marque, l.Engine, l.CarType, l.Year, l.Fuel, l.Gearbox, l.Power, l.Mileage, l.Price} {
		if f.IsNull() {
			n++
		}
	}
	return n
}
