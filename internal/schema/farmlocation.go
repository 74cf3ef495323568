package schema

import "strings"

const (
	locationSeparator = "::"
	farmerKey         = "FARMER="
	ipfsKey           = "IPFS="
)

// FarmLocation is a farm location string split into its base text and extension segments.
type FarmLocation struct {
	Base   string `json:"base"`
	Farmer string `json:"farmer,omitempty"`
	IPFS   string `json:"ipfs,omitempty"`
}

// ParseFarmLocation splits an augmented location such as
// "Village A ::FARMER=Ramesh ::IPFS=Qm..." into its parts.
func ParseFarmLocation(s string) FarmLocation {
	parts := strings.Split(s, locationSeparator)
	if len(parts) == 1 {
		return FarmLocation{Base: s}
	}

	loc := FarmLocation{Base: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		upper := strings.ToUpper(p)
		switch {
		case strings.HasPrefix(upper, farmerKey):
			loc.Farmer = strings.TrimSpace(p[len(farmerKey):])
		case strings.HasPrefix(upper, ipfsKey):
			loc.IPFS = strings.TrimSpace(p[len(ipfsKey):])
		}
	}
	return loc
}
