package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// CSSParser extracts listings using CSS selectors via goquery.
type CSSParser struct {
	cfg    config.ParserConfig
	rules  []fieldRule
	logger *slog.Logger
}

// NewCSSParser creates a new CSS selector parser.
func NewCSSParser(cfg *config.ParserConfig, logger *slog.Logger) *CSSParser {
	return &CSSParser{
		cfg:    *cfg,
		rules:  newRules(cfg),
		logger: logger.With("component", "css_parser"),
	}
}

// Parse implements Parser.
func (p *CSSParser) Parse(resp *types.Response) ([]types.Listing, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Err: err}
	}

	selector := "a." + p.cfg.ListingClass
	anchors := doc.Find(selector)
	if anchors.Length() == 0 {
		return nil, &types.ParseError{URL: resp.URL(), Selector: selector, Err: types.ErrNoListings}
	}

	page := 0
	if resp.Request != nil {
		page = resp.Request.Page
	}

	listings := make([]types.Listing, 0, anchors.Length())
	anchors.Each(func(i int, s *goquery.Selection) {
		listings = append(listings, extract(&cssBlock{sel: s, cfg: &p.cfg}, p.rules, page, i))
	})

	p.logger.Debug("parsed page", "url", resp.URL(), "listings", len(listings))
	return listings, nil
}

// cssBlock reads one anchor's sub-elements with goquery.
type cssBlock struct {
	sel *goquery.Selection
	cfg *config.ParserConfig
}

func (b *cssBlock) text(selector string) (string, bool) {
	found := b.sel.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(found.Text()), true
}

func (b *cssBlock) Title() (string, bool) {
	return b.text("div." + b.cfg.TitleClass)
}

func (b *cssBlock) Labeled(label string) (string, bool) {
	return b.text(fmt.Sprintf("span[title=%q]", label))
}

func (b *cssBlock) Pricing() (string, bool) {
	return b.text("div." + b.cfg.PricingClass)
}
