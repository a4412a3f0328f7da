// Package sites is the page model for the two sites the pipeline drives.
// Every selector, marker, and placeholder tied to a site's markup lives here
// so a markup change touches this package only.
package sites

// Google is the search engine page model.
type Google struct {
	HomeURL string

	QueryInput   string
	SubmitButton string
	Results      string
	// PopupButton whose text matches PopupText is the "Not now" style prompt
	// shown over results. PopupText is a JS regex literal.
	PopupButton string
	PopupText   string
	AnyAnchor   string
}

// DefaultGoogle returns the current Google markup model.
func DefaultGoogle() Google {
	return Google{
		HomeURL:      "https://www.google.com",
		QueryInput:   `textarea[name="q"]`,
		SubmitButton: `input[name="btnK"]`,
		Results:      "#search",
		PopupButton:  `div[role="button"], button`,
		PopupText:    `/^\s*not now\s*$/i`,
		AnyAnchor:    "a[href]",
	}
}

// ResultLinks returns the selector for result anchors pointing at domain.
func (g Google) ResultLinks(domain string) string {
	return g.Results + ` a[href*="` + domain + `"]`
}

// Zillow is the listing site page model.
type Zillow struct {
	StartURL string

	SearchBox string

	// Interstitials
	PopupDismiss   string
	PopupAny       string
	Captcha        string
	ChallengeFrame string

	// Results list
	ListItem     string
	PropertyCard string
	AdCard       string

	// Card fields, relative to a list item
	Address     string
	Price       string
	DetailItems string
	DetailValue string
	CardLink    string

	BedsMarker  string
	BathsMarker string
	SqftMarker  string

	NextPage string

	DetailContainer string
}

// DefaultZillow returns the current Zillow markup model.
func DefaultZillow() Zillow {
	return Zillow{
		StartURL:  "https://www.zillow.com/",
		SearchBox: `input[placeholder="Enter an address, neighborhood, city, or ZIP code"]`,

		PopupDismiss:   `button[class*="StyledTextButton-c11n-8-106-0__sc-1nwmfqo-0 kmALMr"]`,
		PopupAny:       `[class*="StyledTextButton"]`,
		Captcha:        "#px-captcha",
		ChallengeFrame: `iframe[title*="challenge"]`,

		ListItem:     `ul[class*="List"] > li[class*="ListItem"]`,
		PropertyCard: `article[class*="StyledPropertyCard"]`,
		AdCard:       `[class*="AdCard"]`,

		Address:     `address[data-test="property-card-addr"]`,
		Price:       `span[data-test="property-card-price"]`,
		DetailItems: `ul[class*="StyledPropertyCardHomeDetailsList"] li`,
		DetailValue: "b",
		CardLink:    `a[data-test="property-card-link"], a[href*="/homedetails/"]`,

		BedsMarker:  "bds",
		BathsMarker: "ba",
		SqftMarker:  "sqft",

		NextPage: `a[rel="next"]`,

		DetailContainer: ".ds-container",
	}
}

// CaptchaSelectors are the elements whose presence means a captcha is up.
func (z Zillow) CaptchaSelectors() []string {
	return []string{z.Captcha, z.ChallengeFrame}
}

// Placeholders substituted for card fields whose selector did not match.
const (
	AddressNotFound = "Address not found"
	PriceNotFound   = "Price not found"
	BedsNotFound    = "Beds not found"
	BathsNotFound   = "Baths not found"
	SqftNotFound    = "Sqft not found"
)

// Values of the record returned when no location was supplied.
const (
	NoLocationAddress = "No location provided"
	NotApplicable     = "N/A"
)
