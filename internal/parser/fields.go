package parser

import (
	"strings"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// block is the text surface of one listing anchor. Each lookup reports
// false when the sub-element is absent.
type block interface {
	Title() (string, bool)
	Labeled(label string) (string, bool)
	Pricing() (string, bool)
}

// fieldRule extracts one field from a block. Rules never fail; a miss is a null field.
type fieldRule struct {
	name    string
	extract func(b block) types.Field
	assign  func(l *types.Listing, f types.Field)
}

func fromTitle(fn func(string) types.Field) func(block) types.Field {
	return func(b block) types.Field {
		title, ok := b.Title()
		if !ok {
			return types.Null
		}
		return fn(title)
	}
}

func fromLabel(label string, fn func(string) types.Field) func(block) types.Field {
	return func(b block) types.Field {
		text, ok := b.Labeled(label)
		if !ok {
			return types.Null
		}
		return fn(text)
	}
}

// newRules builds the nine extraction rules for the configured markup.
func newRules(cfg *config.ParserConfig) []fieldRule {
	return []fieldRule{
		{"marque", fromTitle(MarqueFromTitle), func(l *types.Listing, f types.Field) { l.Marque = f }},
		{"engine", fromTitle(EngineFromTitle), func(l *types.Listing, f types.Field) { l.Engine = f }},
		{"car_type", fromTitle(CarTypeFromTitle), func(l *types.Listing, f types.Field) { l.CarType = f }},
		{"year", fromLabel(cfg.YearLabel, YearFromDate), func(l *types.Listing, f types.Field) { l.Year = f }},
		{"fuel", fromLabel(cfg.FuelLabel, Verbatim), func(l *types.Listing, f types.Field) { l.Fuel = f }},
		{"gearbox", fromLabel(cfg.GearboxLabel, Verbatim), func(l *types.Listing, f types.Field) { l.Gearbox = f }},
		{"power", fromLabel(cfg.PowerLabel, PowerFromText), func(l *types.Listing, f types.Field) { l.Power = f }},
		{"mileage", fromLabel(cfg.MileageLabel, MileageFromText), func(l *types.Listing, f types.Field) { l.Mileage = f }},
		{"price", func(b block) types.Field {
			text, ok := b.Pricing()
			if !ok {
				return types.Null
			}
			return PriceFromText(text)
		}, func(l *types.Listing, f types.Field) { l.Price = f }},
	}
}

// extract applies every rule to b independently.
func extract(b block, rules []fieldRule, page, position int) types.Listing {
	l := types.Listing{Page: page, Position: position}
	for _, r := range rules {
		r.assign(&l, r.extract(b))
	}
	return l
}

// spaceStripper removes the space characters the site uses as thousands separators.
var spaceStripper = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

func nonEmpty(s string) types.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Null
	}
	return types.Text(s)
}

func titleSegments(title string) []string {
	return strings.Split(strings.TrimSpace(title), ",")
}

// MarqueFromTitle returns the first comma segment of a listing title.
func MarqueFromTitle(title string) types.Field {
	return nonEmpty(titleSegments(title)[0])
}

// EngineFromTitle returns the first token of the second comma segment,
// the engine size in liters.
func EngineFromTitle(title string) types.Field {
	segs := titleSegments(title)
	if len(segs) < 2 {
		return types.Null
	}
	tokens := strings.Fields(segs[1])
	if len(tokens) == 0 {
		return types.Null
	}
	return types.Text(tokens[0])
}

// CarTypeFromTitle returns the last comma segment of a title with at least two segments.
func CarTypeFromTitle(title string) types.Field {
	segs := titleSegments(title)
	if len(segs) < 2 {
		return types.Null
	}
	return nonEmpty(segs[len(segs)-1])
}

// YearFromDate returns the text before the first hyphen of a "YYYY-MM" date.
func YearFromDate(text string) types.Field {
	year, _, _ := strings.Cut(strings.TrimSpace(text), "-")
	return nonEmpty(year)
}

// Verbatim returns the trimmed text.
func Verbatim(text string) types.Field {
	return nonEmpty(text)
}

// PowerFromText returns the first whitespace token, "180 kW" → "180".
func PowerFromText(text string) types.Field {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return types.Null
	}
	return types.Text(tokens[0])
}

// MileageFromText strips the km unit and digit-group spaces, "12 345 km" → "12345".
func MileageFromText(text string) types.Field {
	text = strings.ReplaceAll(text, " km", "")
	return nonEmpty(spaceStripper.Replace(text))
}

// PriceFromText strips the euro sign and digit-group spaces and keeps the
// first remaining token, "15 000 €" → "15000".
func PriceFromText(text string) types.Field {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, " €", "")
	text = strings.ReplaceAll(text, "€", "")
	tokens := strings.Fields(spaceStripper.Replace(text))
	if len(tokens) == 0 {
		return types.Null
	}
	return types.Text(tokens[0])
}
