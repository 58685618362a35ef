// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// parseRows extracts result fields from a structured engine's page
// using its configured CSS selectors. Rows without a magnet link are
// skipped; a page that cannot be parsed at all is a malformed response.
func parseRows(cfg types.EngineConfig, page int, pageURL, body string) ([]types.RawResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &types.ProviderError{EngineID: cfg.ID, Kind: types.ProviderMalformed, Err: err}
	}

	base, _ := url.Parse(pageURL)
	sel := cfg.Selectors

	var items []types.RawResult
	doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		magnet, _ := row.Find(sel.Magnet).First().Attr("href")
		if !IsMagnet(magnet) {
			return
		}

		fields := &types.RawFields{
			MagnetLink: magnet,
			SourceURL:  pageURL,
		}
		if sel.Title != "" {
			fields.Title = strings.TrimSpace(row.Find(sel.Title).First().Text())
		}
		if sel.Size != "" {
			fields.SizeBytes = ParseSize(row.Find(sel.Size).First().Text())
		}
		if sel.Link != "" {
			if href, ok := row.Find(sel.Link).First().Attr("href"); ok {
				fields.SourceURL = resolveURL(base, href)
			}
		}

		items = append(items, types.RawResult{
			EngineID:  cfg.ID,
			PageIndex: page,
			Fields:    fields,
		})
	})

	return items, nil
}

// resolveURL makes href absolute against the page it was found on.
func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// sizeUnits maps size suffixes to byte multipliers. Both SI-ish (KB)
// and binary (KiB) spellings appear in the wild; engines are loose
// about which they mean, so both resolve to 1024-based units.
var sizeUnits = map[string]int64{
	"b":   1,
	"kb":  1 << 10,
	"kib": 1 << 10,
	"mb":  1 << 20,
	"mib": 1 << 20,
	"gb":  1 << 30,
	"gib": 1 << 30,
	"tb":  1 << 40,
	"tib": 1 << 40,
}

// ParseSize converts a human-readable size ("1.4 GiB", "700 MB") into
// bytes. Unparseable input yields 0 (size unknown).
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// Split the trailing unit off the numeric part.
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		i--
	}
	num := strings.TrimSpace(strings.ReplaceAll(s[:i], ",", ""))
	unit := strings.ToLower(strings.TrimSpace(s[i:]))

	mult, ok := sizeUnits[unit]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v * float64(mult))
}
