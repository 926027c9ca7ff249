package geo

import (
	"context"
	"strings"

	"github.com/cuongbtq/snow-market/internal/domain"
)

// AddressLines is the geocoder input
type AddressLines struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
}

// Geocoder resolves an address to coordinates. ok is false when the address cannot be located.
type Geocoder interface {
	Geocode(ctx context.Context, addr AddressLines) (p Point, ok bool, err error)
}

// ServiceArea is the city the marketplace operates in
type ServiceArea struct {
	City           string
	Province       string
	PostalPrefixes []string
	Center         Point
}

// Validate rejects addresses outside the service area
func (a ServiceArea) Validate(addr AddressLines) error {
	if strings.TrimSpace(addr.Line1) == "" || strings.TrimSpace(addr.City) == "" || strings.TrimSpace(addr.PostalCode) == "" {
		return domain.E(domain.KindInvalid, "address", "missing required fields: line1, city, postal_code")
	}
	if !strings.EqualFold(strings.TrimSpace(addr.City), a.City) {
		return domain.E(domain.KindInvalid, "address", "service is only available in "+a.City)
	}
	if !a.ValidPostalCode(addr.PostalCode) {
		return domain.E(domain.KindInvalid, "address", "invalid postal code for "+a.City+", must start with "+strings.Join(a.PostalPrefixes, ", "))
	}
	return nil
}

// ValidPostalCode reports whether code starts with one of the configured prefixes,
// ignoring whitespace and case
func (a ServiceArea) ValidPostalCode(code string) bool {
	normalized := NormalizePostalCode(code)
	for _, prefix := range a.PostalPrefixes {
		if strings.HasPrefix(normalized, strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

// NormalizePostalCode uppercases code and strips whitespace
func NormalizePostalCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// CentroidGeocoder places every address in the service city at the city centre
type CentroidGeocoder struct {
	Area ServiceArea
}

// Geocode implements Geocoder
func (g CentroidGeocoder) Geocode(_ context.Context, addr AddressLines) (Point, bool, error) {
	if !strings.EqualFold(strings.TrimSpace(addr.City), g.Area.City) {
		return Point{}, false, nil
	}
	return g.Area.Center, true, nil
}
