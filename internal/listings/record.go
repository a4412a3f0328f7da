// Package listings turns rendered result pages into listing records: it
// scrolls lazy lists into existence, reads property cards, follows
// pagination, and deduplicates the aggregate by address.
package listings

import (
	"listingscout/internal/sites"
)

// Record is one listing as rendered. Fields are free text; a field whose
// selector did not match holds its placeholder.
type Record struct {
	Address string `json:"address"`
	Price   string `json:"price"`
	Beds    string `json:"beds"`
	Baths   string `json:"baths"`
	Sqft    string `json:"sqft"`
	URL     string `json:"url,omitempty"`
	Details string `json:"details,omitempty"`
}

// Sentinel is the single record returned when no location was supplied.
func Sentinel() Record {
	return Record{
		Address: sites.NoLocationAddress,
		Price:   sites.NotApplicable,
		Beds:    sites.NotApplicable,
		Baths:   sites.NotApplicable,
		Sqft:    sites.NotApplicable,
	}
}

// Dedupe drops every record whose address was already seen, keeping the
// first occurrence and the original order.
func Dedupe(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.Address]; dup {
			continue
		}
		seen[r.Address] = struct{}{}
		out = append(out, r)
	}
	return out
}
