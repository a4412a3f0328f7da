package listings

import (
	"fmt"
	"strings"

	"listingscout/internal/sites"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CardKind classifies a list item.
type CardKind int

const (
	KindProperty CardKind = iota
	KindAd
	KindEmpty
)

// ParseCard reads one list item's markup. Ads and items without a property
// card are reported by kind and yield no record. Missing fields become
// placeholders; parsing never fails on absent markup.
func ParseCard(markup string, model sites.Zillow) (Record, CardKind, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Record{}, KindEmpty, fmt.Errorf("parse card: %w", err)
	}
	if doc.Find(model.AdCard).Length() > 0 {
		return Record{}, KindAd, nil
	}
	card := doc.Find(model.PropertyCard).First()
	if card.Length() == 0 {
		return Record{}, KindEmpty, nil
	}

	rec := Record{
		Address: textOr(card.Find(model.Address).First(), sites.AddressNotFound),
		Price:   textOr(card.Find(model.Price).First(), sites.PriceNotFound),
		Beds:    sites.BedsNotFound,
		Baths:   sites.BathsNotFound,
		Sqft:    sites.SqftNotFound,
	}
	if href, ok := card.Find(model.CardLink).First().Attr("href"); ok {
		rec.URL = strings.TrimSpace(href)
	}

	card.Find(model.DetailItems).Each(func(_ int, li *goquery.Selection) {
		value := collapse(li.Find(model.DetailValue).First().Text())
		switch markerOf(li.Text(), model) {
		case model.BedsMarker:
			rec.Beds = orDefault(value, rec.Beds)
		case model.BathsMarker:
			rec.Baths = orDefault(value, rec.Baths)
		case model.SqftMarker:
			rec.Sqft = orDefault(value, rec.Sqft)
		}
	})
	return rec, KindProperty, nil
}

// markerOf matches a details item by the unit after its value ("3 bds",
// "1 bd", "2 ba", "1,450 sqft") rather than by position.
func markerOf(text string, model sites.Zillow) string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return ""
	}
	unit := strings.TrimRight(fields[len(fields)-1], ".,")
	for _, marker := range []string{model.SqftMarker, model.BedsMarker, model.BathsMarker} {
		if marker != "" && singular(unit) == singular(marker) {
			return marker
		}
	}
	return ""
}

func singular(s string) string {
	return strings.TrimSuffix(s, "s")
}

func textOr(sel *goquery.Selection, placeholder string) string {
	if sel.Length() == 0 {
		return placeholder
	}
	return orDefault(collapse(sel.Text()), placeholder)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TextOf returns the whitespace-collapsed text content of an HTML fragment.
func TextOf(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse detail: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return collapse(b.String()), nil
}

// writeText separates text nodes so adjacent blocks do not run together.
func writeText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}
