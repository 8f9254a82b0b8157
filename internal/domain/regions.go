package domain

import (
	"fmt"
	"strings"
)

var DefaultRegions = []string{"AS", "NA", "EU"}

// Regions is the closed set of regions accepted at the command boundary.
type Regions struct {
	names []string
}

func NewRegions(names []string) Regions {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return Regions{names: cleaned}
}

// Parse returns the canonical region. An empty input yields UnknownRegion.
func (r Regions) Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, UnknownRegion) {
		return UnknownRegion, nil
	}
	for _, n := range r.names {
		if strings.EqualFold(n, s) {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q (use one of %s)", ErrRegionNotRecognized, s, strings.Join(r.names, ", "))
}

func (r Regions) Names() []string {
	return append([]string(nil), r.names...)
}
