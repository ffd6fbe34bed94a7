package classify

import (
	"strings"

	"parcelwatch/internal/extract"
	"parcelwatch/internal/parcel"
)

// DomainBonus is added to a candidate's confidence when the sender domain
// corroborates the pattern's courier hint.
const DomainBonus = 15

// UnknownCompany is the placeholder when no domain table entry matches.
const UnknownCompany = "unknown"

// Classifier maps candidates to classifications using static lookup
// tables. Safe for concurrent use; the tables are read-only after
// construction.
type Classifier struct {
	courierByDomain map[string]parcel.Courier
	companyByDomain map[string]string
}

// New builds a classifier. Nil maps select the built-in tables.
func New(courierByDomain map[string]parcel.Courier, companyByDomain map[string]string) *Classifier {
	if courierByDomain == nil {
		courierByDomain = defaultCourierDomains()
	}
	if companyByDomain == nil {
		companyByDomain = defaultCompanyDomains()
	}
	return &Classifier{
		courierByDomain: courierByDomain,
		companyByDomain: companyByDomain,
	}
}

func defaultCourierDomains() map[string]parcel.Courier {
	return map[string]parcel.Courier{
		"ups.com":   parcel.CourierUPS,
		"fedex.com": parcel.CourierFedEx,
		"usps.com":  parcel.CourierUSPS,
		"usps.gov":  parcel.CourierUSPS,
		"dhl.com":   parcel.CourierDHL,
		"dhl.de":    parcel.CourierDHL,
	}
}

func defaultCompanyDomains() map[string]string {
	return map[string]string{
		"amazon.com":  "amazon",
		"amazon.de":   "amazon",
		"amazon.uk":   "amazon",
		"ups.com":     "ups",
		"fedex.com":   "fedex",
		"usps.com":    "usps",
		"dhl.com":     "dhl",
		"shopify.com": "shopify",
		"ebay.com":    "ebay",
		"etsy.com":    "etsy",
		"target.com":  "target",
		"walmart.com": "walmart",
	}
}

// Classify resolves one candidate into a parcel classification. Pure: a
// read of the static tables plus the candidate itself.
func (c *Classifier) Classify(candidate extract.Candidate) parcel.Classification {
	domainCourier := c.courierForDomain(candidate.SenderDomain)

	courier := candidate.Hint
	confidence := candidate.Confidence
	switch {
	case courier == parcel.CourierUnknown || courier == "":
		courier = domainCourier
	case domainCourier == courier:
		confidence += DomainBonus
	}
	if courier == "" {
		courier = parcel.CourierUnknown
	}

	return parcel.Classification{
		TrackingNumber: parcel.NormalizeTrackingNumber(candidate.Raw),
		Courier:        courier,
		Company:        c.companyForDomain(candidate.SenderDomain),
		Confidence:     confidence,
		ObservedAt:     candidate.ObservedAt,
		MessageID:      candidate.MessageID,
	}
}

func (c *Classifier) courierForDomain(domain string) parcel.Courier {
	domain = normalizeDomain(domain)
	if domain == "" {
		return parcel.CourierUnknown
	}
	for candidate := domain; candidate != ""; candidate = parentDomain(candidate) {
		if courier, ok := c.courierByDomain[candidate]; ok {
			return courier
		}
	}
	return parcel.CourierUnknown
}

func (c *Classifier) companyForDomain(domain string) string {
	domain = normalizeDomain(domain)
	if domain == "" {
		return UnknownCompany
	}
	for candidate := domain; candidate != ""; candidate = parentDomain(candidate) {
		if company, ok := c.companyByDomain[candidate]; ok {
			return company
		}
	}
	return UnknownCompany
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimSuffix(domain, ".")))
}

// parentDomain strips the leftmost label so mail.ups.com falls back to
// ups.com.
func parentDomain(domain string) string {
	idx := strings.Index(domain, ".")
	if idx < 0 {
		return ""
	}
	rest := domain[idx+1:]
	if !strings.Contains(rest, ".") {
		return ""
	}
	return rest
}
