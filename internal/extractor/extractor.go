// Package extractor parses listing-site HTML into listing.Records using
// a cascading structural-selector strategy.
package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
)

// cardStrategies is the ordered cascade of container queries, most to
// least specific. The first strategy yielding at least one match wins;
// matches are never merged across strategies. This is the defense
// against markup drift between site redesigns.
var cardStrategies = []string{
	"div[class*='listing-card'], div[class*='listing-item'], div[class*='property-card'], article[class*='listing']",
	"div[class*='card']",
	"div[class*='listing']",
	"div[class*='property']",
	"div[class*='apt']",
	"div[class*='unit']",
	"a[class*='listing']",
	"a[href*='/listings/']",
}

var (
	priceRe    = regexp.MustCompile(`\$[\d,]+`)
	numberRe   = regexp.MustCompile(`[\d.]+`)
	bedsRe     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:bd|bed)`)
	bathsRe    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ba|bath)`)
	sqftTextRe = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s*ft|sqft|square feet)`)
	unitTextRe = regexp.MustCompile(`(?i)\b(unit\s*#?\s*[\w-]+)`)
)

// Placeholder naming patterns seen in lazy-loading markup. A src
// matching one of these is never the real image.
var placeholderTokens = []string{"placeholder", "place_holder", "loading"}

// Image attributes in preference order: lazy-load markup ships the real
// URL in a data attribute and a placeholder in src.
var imageAttrs = []string{"data-src", "data-original", "src"}

// Config parameterizes extraction for one source site.
type Config struct {
	// BaseURL is the origin used to absolutize relative URLs.
	BaseURL string
	// GalleryCDN is the substring identifying gallery image URLs on a
	// detail page.
	GalleryCDN string
}

// Extractor turns fetched HTML into raw listing records.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.GalleryCDN == "" {
		cfg.GalleryCDN = "images.cdn.appfolio.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract parses one HTML document into zero or more records. A missing
// field is omitted from the record, never an error; an unparseable
// document yields zero records and a warning.
func (e *Extractor) Extract(html []byte) []listing.Record {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		e.logger.Warn("html parse failed", zap.Error(err))
		return nil
	}

	var cards *goquery.Selection
	for _, strategy := range cardStrategies {
		sel := doc.Find(strategy)
		if sel.Length() > 0 {
			e.logger.Info("selector strategy matched",
				zap.String("strategy", strategy),
				zap.Int("cards", sel.Length()),
			)
			cards = sel
			break
		}
	}
	if cards == nil {
		e.logger.Warn("no cards found with any selector strategy; markup may have changed or be dynamically loaded")
		return nil
	}

	records := make([]listing.Record, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		records = append(records, e.extractCard(card))
	})

	for i, rec := range records {
		if i >= 3 {
			break
		}
		e.logger.Info("sample extracted record",
			zap.Int("index", i),
			zap.String("title", rec.Title),
			zap.String("address", rec.Address),
		)
	}
	return records
}

func (e *Extractor) extractCard(card *goquery.Selection) listing.Record {
	var rec listing.Record

	if title := firstText(card, "h2, h3, h4, a[class*='title'], div[class*='title']"); title != "" {
		rec.Title = title
	}

	e.extractDetailBox(card, &rec)

	if rec.Price == nil {
		e.extractPrice(card, &rec)
	}
	if rec.Bedrooms == nil {
		if v, ok := firstNumber(card, "[class*='bed']"); ok {
			rec.Bedrooms = listing.FloatPtr(v)
		} else if m := bedsRe.FindStringSubmatch(card.Text()); m != nil {
			rec.Bedrooms = parseFloatPtr(m[1])
		}
	}
	if rec.Bathrooms == nil {
		if v, ok := firstNumber(card, "[class*='bath']"); ok {
			rec.Bathrooms = listing.FloatPtr(v)
		} else if m := bathsRe.FindStringSubmatch(card.Text()); m != nil {
			rec.Bathrooms = parseFloatPtr(m[1])
		}
	}
	if rec.Sqft == nil {
		if v, ok := firstNumber(card, "[class*='sqft'], [class*='sq-ft']"); ok {
			rec.Sqft = listing.FloatPtr(v)
		} else if m := sqftTextRe.FindStringSubmatch(card.Text()); m != nil {
			rec.Sqft = parseFloatPtr(strings.ReplaceAll(m[1], ",", ""))
		}
	}

	if addr := firstText(card, "[class*='address'], address"); addr != "" {
		rec.Address = addr
	}
	if rec.Availability == "" {
		if avail := firstText(card, "[class*='available'], [class*='availability']"); avail != "" {
			rec.Availability = avail
		}
	}
	if img, ok := e.extractImageURL(card); ok {
		rec.ImageURL = img
	}
	if href, ok := card.Find("a[href]").First().Attr("href"); ok && href != "" {
		rec.DetailURL = e.absoluteURL(href)
	}
	if unit := firstText(card, "[class*='unit']"); unit != "" {
		rec.UnitLabel = unit
	} else if m := unitTextRe.FindStringSubmatch(card.Text()); m != nil {
		rec.UnitLabel = strings.TrimSpace(m[1])
	}

	return rec
}

// extractDetailBox reads the structured label/value quick-facts markup.
// Structured values win over the loose class/text fallbacks.
func (e *Extractor) extractDetailBox(card *goquery.Selection, rec *listing.Record) {
	card.Find("div[class*='detail-box__item']").Each(func(_ int, item *goquery.Selection) {
		label := strings.TrimSpace(item.Find("dt[class*='detail-box__label']").First().Text())
		value := strings.TrimSpace(item.Find("dd[class*='detail-box__value']").First().Text())
		if label == "" || value == "" {
			return
		}
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, "rent") || strings.Contains(value, "$"):
			if m := priceRe.FindString(value); m != "" {
				rec.Price = listing.IntPtr(parsePrice(m))
			}
		case strings.Contains(lower, "square feet") || strings.Contains(lower, "sq ft"):
			if v, ok := parseNumber(value); ok {
				rec.Sqft = listing.FloatPtr(v)
			}
		case strings.Contains(lower, "bed"):
			// Combined "3 bd / 1 ba" values carry both counts.
			if m := bedsRe.FindStringSubmatch(value); m != nil {
				rec.Bedrooms = parseFloatPtr(m[1])
			}
			if m := bathsRe.FindStringSubmatch(value); m != nil {
				rec.Bathrooms = parseFloatPtr(m[1])
			}
		case strings.Contains(lower, "bath"):
			if m := bathsRe.FindStringSubmatch(value); m != nil {
				rec.Bathrooms = parseFloatPtr(m[1])
			} else if v, ok := parseNumber(value); ok {
				rec.Bathrooms = listing.FloatPtr(v)
			}
		case strings.Contains(lower, "available"):
			rec.Availability = value
		}
	})
}

func (e *Extractor) extractPrice(card *goquery.Selection, rec *listing.Record) {
	priceSel := card.Find("[class*='price']")
	if priceSel.Length() > 0 {
		// A price-classed element with no dollar token still sets an
		// explicit zero, matching how the source renders "call for price".
		if m := priceRe.FindString(priceSel.First().Text()); m != "" {
			rec.Price = listing.IntPtr(parsePrice(m))
		} else {
			rec.Price = listing.IntPtr(0)
		}
		return
	}
	if m := priceRe.FindString(card.Text()); m != "" {
		rec.Price = listing.IntPtr(parsePrice(m))
	}
}

// extractImageURL inspects the first img descendant, preferring deferred
// lazy-load attributes and skipping placeholder src values.
func (e *Extractor) extractImageURL(card *goquery.Selection) (string, bool) {
	img := card.Find("img").First()
	if img.Length() == 0 {
		return "", false
	}
	for _, attr := range imageAttrs {
		val, ok := img.Attr(attr)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		if attr == "src" && isPlaceholder(val) {
			continue
		}
		return e.absoluteURL(val), true
	}
	return "", false
}

func isPlaceholder(u string) bool {
	lower := strings.ToLower(u)
	for _, token := range placeholderTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func (e *Extractor) absoluteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	base, err := url.Parse(e.cfg.BaseURL)
	if err != nil || base.Host == "" {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

func firstText(card *goquery.Selection, selector string) string {
	sel := card.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.First().Text())
}

func firstNumber(card *goquery.Selection, selector string) (float64, bool) {
	sel := card.Find(selector)
	if sel.Length() == 0 {
		return 0, false
	}
	return parseNumber(sel.First().Text())
}

// parseNumber extracts the first numeric token after stripping thousands
// separators.
func parseNumber(text string) (float64, bool) {
	cleaned := strings.ReplaceAll(text, ",", "")
	m := numberRe.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parsePrice(token string) int {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(token)
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return v
}

func parseFloatPtr(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return listing.FloatPtr(v)
}
