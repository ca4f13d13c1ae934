package tiger

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Version identifies a TIGER/Line release family. Later releases compare
// greater.
type Version int

const (
	VersionUnknown Version = iota
	Version1990Precensus
	Version1990
	Version1992
	Version1994
	Version1995
	Version1997
	Version1998
	Version1999
	Version2000Redistricting
	Version2000Census
	VersionUA2000
	Version2002
	Version2003
	Version2004
)

var versionNames = map[Version]string{
	Version1990Precensus:     "TIGER_1990_Precensus",
	Version1990:              "TIGER_1990",
	Version1992:              "TIGER_1992",
	Version1994:              "TIGER_1994",
	Version1995:              "TIGER_1995",
	Version1997:              "TIGER_1997",
	Version1998:              "TIGER_1998",
	Version1999:              "TIGER_1999",
	Version2000Redistricting: "TIGER_2000_Redistricting",
	Version2000Census:        "TIGER_2000_Census",
	VersionUA2000:            "TIGER_UA2000",
	Version2002:              "TIGER_2002",
	Version2003:              "TIGER_2003",
	Version2004:              "TIGER_2004",
}

// canonicalCodes are written into new files that have no first record to
// copy a version code from.
var canonicalCodes = map[Version]string{
	Version1990Precensus:     "0000",
	Version1990:              "0005",
	Version1992:              "0021",
	Version1994:              "0024",
	Version1995:              "0025",
	Version1997:              "0197",
	Version1998:              "0198",
	Version1999:              "0199",
	Version2000Redistricting: "0300",
	Version2000Census:        "1200",
	VersionUA2000:            "0601",
	Version2002:              "0202",
	Version2003:              "0203",
	Version2004:              "0204",
}

func (v Version) String() string {
	if name, ok := versionNames[v]; ok {
		return name
	}
	return "TIGER_Unknown"
}

// Code returns the four digit version code written into columns 2-5.
func (v Version) Code() string {
	return canonicalCodes[v]
}

// ParseVersion accepts either a release name such as "TIGER_2002" or a
// four digit version code.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	for v, name := range versionNames {
		if strings.EqualFold(s, name) || strings.EqualFold("TIGER_"+s, name) {
			return v, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return VersionUnknown, eris.Errorf("tiger: unrecognized version %q", s)
	}
	v := ClassifyVersion(n)
	if v == VersionUnknown {
		return VersionUnknown, eris.Errorf("tiger: unrecognized version code %d", n)
	}
	return v, nil
}

// ClassifyVersion maps a numeric version code (MMYY for most releases) to a
// release family.
func ClassifyVersion(code int) Version {
	switch code {
	case 0:
		return Version1990Precensus
	case 5:
		return Version1990
	case 21:
		return Version1992
	case 24:
		return Version1994
	case 25:
		return Version1995
	}

	month, year := code/100, code%100
	if month < 1 || month > 12 {
		return VersionUnknown
	}
	switch {
	case year == 97:
		return Version1997
	case year == 98:
		return Version1998
	case year == 99:
		return Version1999
	case year == 0 && month <= 6:
		return Version2000Redistricting
	case year == 0:
		return Version2000Census
	case year == 1:
		return VersionUA2000
	case year == 2:
		return Version2002
	case year == 3:
		return Version2003
	case year >= 4 && year <= 20:
		return Version2004
	}
	return VersionUnknown
}
