package tiger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// FIPSCodes maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var FIPSCodes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// abbrByFIPS is a reverse lookup from FIPS code to state abbreviation.
var abbrByFIPS map[string]string

func init() {
	abbrByFIPS = make(map[string]string, len(FIPSCodes))
	for abbr, fips := range FIPSCodes {
		abbrByFIPS[fips] = abbr
	}
}

// AbbrFromFIPS returns the state abbreviation for a FIPS code.
func AbbrFromFIPS(fips string) (string, bool) {
	abbr, ok := abbrByFIPS[fips]
	return abbr, ok
}

// AllStateFIPS returns a sorted list of all state FIPS codes.
func AllStateFIPS() []string {
	codes := make([]string, 0, len(FIPSCodes))
	for _, fips := range FIPSCodes {
		codes = append(codes, fips)
	}
	sort.Strings(codes)
	return codes
}

var moduleRe = regexp.MustCompile(`(?i)^TGR(\d{2})(\d{3})$`)

// ParseModule splits a module name such as TGR06037 into its state and
// county FIPS codes.
func ParseModule(module string) (state, county string, ok bool) {
	m := moduleRe.FindStringSubmatch(module)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ModuleName builds the module name of a county.
func ModuleName(stateFIPS, countyFIPS string) string {
	return fmt.Sprintf("TGR%s%s", stateFIPS, countyFIPS)
}

// DefaultRelease is the last legacy TIGER/Line release with record type files.
const DefaultRelease = "tiger2006se"

// ArchiveURL builds the Census Bureau URL of a county's legacy TIGER/Line
// archive, e.g. .../tiger2006se/CA/TGR06037.ZIP.
func ArchiveURL(release, stateAbbr, countyFIPS string) (string, error) {
	stateAbbr = strings.ToUpper(stateAbbr)
	fips, ok := FIPSCodes[stateAbbr]
	if !ok {
		return "", eris.Errorf("tiger: unknown state %q", stateAbbr)
	}
	if release == "" {
		release = DefaultRelease
	}
	return fmt.Sprintf(
		"https://www2.census.gov/geo/tiger/%s/%s/%s.ZIP",
		release, stateAbbr, ModuleName(fips, countyFIPS),
	), nil
}
