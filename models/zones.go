package models

import (
	"fmt"
	"strings"
)

// Bidding zones covered by the pipeline. NL is the home zone; the others are
// its electrically connected neighbours.
var Zones = []string{"BE", "DE_LU", "DK_1", "GB", "NL", "NO_2"}

func ValidZone(code string) bool {
	for _, zone := range Zones {
		if zone == code {
			return true
		}
	}
	return false
}

// PairID encodes a directed border pair as a single entity id, e.g. "NL->BE".
func PairID(from, to string) string {
	return from + "->" + to
}

// SplitPair is the inverse of PairID.
func SplitPair(pair string) (from, to string, err error) {
	parts := strings.SplitN(pair, "->", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed border pair %q", pair)
	}
	return parts[0], parts[1], nil
}

// BorderPairs lists every directed pair between home and its neighbours, in
// both directions, sorted by neighbour.
func BorderPairs(home string) []string {
	pairs := make([]string, 0, 2*(len(Zones)-1))
	for _, zone := range Zones {
		if zone == home {
			continue
		}
		pairs = append(pairs, PairID(home, zone), PairID(zone, home))
	}
	return pairs
}

// Flow directions relative to the home zone.
const (
	DirectionExport = "export"
	DirectionImport = "import"
)

func FlowDirection(from, home string) string {
	if from == home {
		return DirectionExport
	}
	return DirectionImport
}
