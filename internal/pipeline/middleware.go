package pipeline

import (
	"strings"

	"github.com/IshaanNene/carscout/internal/types"
)

// TrimMiddleware trims whitespace from every non-null field. Fields left
// empty become null.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(l *types.Listing) error {
	for _, f := range l.Fields() {
		*f = f.Trim()
	}
	return nil
}

// MarqueSplitMiddleware derives Brand and Model from Marque.
// With Strict set a null marque is an error instead of null brand and model.
type MarqueSplitMiddleware struct {
	Strict bool
}

func (m *MarqueSplitMiddleware) Name() string { return "marque_split" }

func (m *MarqueSplitMiddleware) Process(l *types.Listing) error {
	if l.Marque.IsNull() && m.Strict {
		return types.ErrNullMarque
	}
	l.Brand, l.Model = SplitMarque(l.Marque)
	return nil
}

// SplitMarque returns the first whitespace token of marque as the brand and
// the remaining tokens joined by one space as the model.
func SplitMarque(marque types.Field) (brand, model types.Field) {
	if marque.IsNull() {
		return types.Null, types.Null
	}
	tokens := strings.Fields(marque.Value)
	if len(tokens) == 0 {
		return types.Null, types.Null
	}
	brand = types.Text(tokens[0])
	if len(tokens) > 1 {
		model = types.Text(strings.Join(tokens[1:], " "))
	}
	return brand, model
}
