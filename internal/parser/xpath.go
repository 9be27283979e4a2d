package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/carscout/internal/config"
	"github.com/IshaanNene/carscout/internal/types"
)

// XPathParser extracts listings using XPath expressions.
type XPathParser struct {
	cfg    config.ParserConfig
	rules  []fieldRule
	logger *slog.Logger
}

// NewXPathParser creates a new XPath parser.
func NewXPathParser(cfg *config.ParserConfig, logger *slog.Logger) *XPathParser {
	return &XPathParser{
		cfg:    *cfg,
		rules:  newRules(cfg),
		logger: logger.With("component", "xpath_parser"),
	}
}

// hasClass matches elements whose class attribute contains class as a whole word.
func hasClass(tag, class string) string {
	return fmt.Sprintf("%s[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", tag, class)
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a value holding both quote kinds is built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, part := range parts {
		parts[i] = "'" + part + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// Parse implements Parser.
func (p *XPathParser) Parse(resp *types.Response) ([]types.Listing, error) {
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Err: err}
	}

	expr := "//" + hasClass("a", p.cfg.ListingClass)
	anchors, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Selector: expr, Err: err}
	}
	if len(anchors) == 0 {
		return nil, &types.ParseError{URL: resp.URL(), Selector: expr, Err: types.ErrNoListings}
	}

	page := 0
	if resp.Request != nil {
		page = resp.Request.Page
	}

	listings := make([]types.Listing, 0, len(anchors))
	for i, a := range anchors {
		listings = append(listings, extract(&xpathBlock{node: a, cfg: &p.cfg}, p.rules, page, i))
	}

	p.logger.Debug("parsed page", "url", resp.URL(), "listings", len(listings))
	return listings, nil
}

// xpathBlock reads one anchor's sub-elements with htmlquery.
type xpathBlock struct {
	node *html.Node
	cfg  *config.ParserConfig
}

func (b *xpathBlock) text(expr string) (string, bool) {
	found, err := htmlquery.Query(b.node, expr)
	if err != nil || found == nil {
		return "", false
	}
	return strings.TrimSpace(htmlquery.InnerText(found)), true
}

func (b *xpathBlock) Title() (string, bool) {
	return b.text(".//" + hasClass("div", b.cfg.TitleClass))
}

func (b *xpathBlock) Labeled(label string) (string, bool) {
	return b.text(".//span[@title=" + xpathLiteral(label) + "]")
}

func (b *xpathBlock) Pricing() (string, bool) {
	return b.text(".//" + hasClass("div", b.cfg.PricingClass))
}
