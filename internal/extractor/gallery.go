package extractor

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ExtractGallery scans a detail page for photo URLs hosted on the
// listing CDN. URLs are deduped in page order, and medium renditions are
// upgraded to large when the size token is present in the path.
func (e *Extractor) ExtractGallery(html []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		e.logger.Warn("gallery html parse failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]struct{})
	var urls []string
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || !strings.Contains(raw, e.cfg.GalleryCDN) {
			return
		}
		u := e.absoluteURL(upgradeRendition(raw))
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range imageAttrs {
			if val, ok := img.Attr(attr); ok {
				add(val)
			}
		}
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			add(href)
		}
	})

	e.logger.Info("gallery images found", zap.Int("count", len(urls)))
	return urls
}

// upgradeRendition swaps the CDN's medium rendition for large. The CDN
// serves both from the same path with only the size token changed.
func upgradeRendition(u string) string {
	return strings.Replace(u, "/medium.", "/large.", 1)
}
