package domain

import (
	"fmt"
	"strings"
)

type GeographicLevel string

const (
	LevelNational                   GeographicLevel = "NAT"
	LevelRegional                   GeographicLevel = "REG"
	LevelLocalAuthority             GeographicLevel = "LA"
	LevelLocalAuthorityDistrict     GeographicLevel = "LAD"
	LevelRscRegion                  GeographicLevel = "RSC"
	LevelParliamentaryConstituency  GeographicLevel = "PCON"
	LevelWard                       GeographicLevel = "WARD"
	LevelSchool                     GeographicLevel = "SCH"
	LevelProvider                   GeographicLevel = "PROV"
	LevelInstitution                GeographicLevel = "INST"
)

var levelLabels = map[GeographicLevel]string{
	LevelNational:                  "National",
	LevelRegional:                  "Regional",
	LevelLocalAuthority:            "Local authority",
	LevelLocalAuthorityDistrict:    "Local authority district",
	LevelRscRegion:                 "RSC region",
	LevelParliamentaryConstituency: "Parliamentary constituency",
	LevelWard:                      "Ward",
	LevelSchool:                    "School",
	LevelProvider:                  "Provider",
	LevelInstitution:               "Institution",
}

func (l GeographicLevel) Label() string { return levelLabels[l] }

// ParseGeographicLevel accepts either the short code or the human label as
// it appears in source files ("LA", "Local authority", "local authority").
func ParseGeographicLevel(raw string) (GeographicLevel, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	upper := GeographicLevel(strings.ToUpper(s))
	if _, ok := levelLabels[upper]; ok {
		return upper, true
	}
	for level, label := range levelLabels {
		if strings.EqualFold(label, s) {
			return level, true
		}
	}
	return "", false
}

// LocationOption is a closed union over geography kinds. Each variant
// carries only the attributes meaningful to that kind; matching on the
// concrete type is exhaustive because the marker method is unexported.
type LocationOption interface {
	Level() GeographicLevel
	isLocationOption()
}

// LocationCodedOption is the general geography kind: a single ONS-style code.
type LocationCodedOption struct {
	OptionLevel GeographicLevel
	Code        string
}

func (o LocationCodedOption) Level() GeographicLevel { return o.OptionLevel }
func (LocationCodedOption) isLocationOption()        {}

// LocationLocalAuthorityOption carries both the new and the legacy LA code.
type LocationLocalAuthorityOption struct {
	OptionLevel GeographicLevel
	Code        string
	OldCode     string
}

func (o LocationLocalAuthorityOption) Level() GeographicLevel { return o.OptionLevel }
func (LocationLocalAuthorityOption) isLocationOption()        {}

type LocationProviderOption struct {
	UKPRN string
}

func (LocationProviderOption) Level() GeographicLevel { return LevelProvider }
func (LocationProviderOption) isLocationOption()      {}

// LocationRscRegionOption has no code of its own; the label is the identity.
type LocationRscRegionOption struct{}

func (LocationRscRegionOption) Level() GeographicLevel { return LevelRscRegion }
func (LocationRscRegionOption) isLocationOption()      {}

type LocationSchoolOption struct {
	URN     string
	LAEstab string
}

func (LocationSchoolOption) Level() GeographicLevel { return LevelSchool }
func (LocationSchoolOption) isLocationOption()      {}

// OptionCode returns the primary identifying code for a location option,
// used as part of the natural key when diffing versions.
func OptionCode(opt LocationOption) string {
	switch o := opt.(type) {
	case LocationCodedOption:
		return o.Code
	case LocationLocalAuthorityOption:
		return o.Code
	case LocationProviderOption:
		return o.UKPRN
	case LocationRscRegionOption:
		return ""
	case LocationSchoolOption:
		return o.URN
	}
	panic(fmt.Sprintf("unhandled location option %T", opt))
}
