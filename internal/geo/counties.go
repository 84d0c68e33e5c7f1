// Package geo holds the static county to zip lookup used by bulk
// enqueue expansion.
package geo

import "sort"

// countyZips maps a lowercase county name to its constituent zips.
// Covers the counties of the current deployment footprint.
var countyZips = map[string][]string{
	"camden": {
		"08002", "08003", "08007", "08021", "08026", "08030",
		"08031", "08033", "08034", "08043", "08045", "08049",
		"08059", "08078", "08081", "08083", "08102", "08104",
	},
	"gloucester": {
		"08012", "08020", "08025", "08028", "08032", "08039",
		"08051", "08056", "08061", "08062", "08063", "08066",
		"08071", "08080", "08085", "08090", "08093", "08094",
	},
	"burlington": {
		"08010", "08015", "08016", "08022", "08036", "08046",
		"08048", "08052", "08053", "08054", "08055", "08057",
		"08060", "08064", "08065", "08068", "08073", "08075",
	},
	"atlantic": {
		"08201", "08203", "08205", "08215", "08221", "08225",
		"08232", "08234", "08240", "08241", "08244", "08310",
		"08317", "08330", "08340", "08346", "08401", "08406",
	},
}

// ZipsForCounty returns the zip codes of a county, or false when the
// county is unknown.
func ZipsForCounty(county string) ([]string, bool) {
	zips, ok := countyZips[normalize(county)]
	if !ok {
		return nil, false
	}
	out := make([]string, len(zips))
	copy(out, zips)
	return out, true
}

// Counties returns the known county names, sorted.
func Counties() []string {
	names := make([]string, 0, len(countyZips))
	for name := range countyZips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(county string) string {
	b := []byte(county)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
