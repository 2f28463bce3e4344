package domain

// LevelColumns names the source-file columns that identify an option at a
// given geographic level. CodeColumns are listed most-significant first;
// NameColumn holds the display label.
type LevelColumns struct {
	CodeColumns []string
	NameColumn  string
}

var levelColumns = map[GeographicLevel]LevelColumns{
	LevelNational:                  {CodeColumns: []string{"country_code"}, NameColumn: "country_name"},
	LevelRegional:                  {CodeColumns: []string{"region_code"}, NameColumn: "region_name"},
	LevelLocalAuthority:            {CodeColumns: []string{"new_la_code", "old_la_code"}, NameColumn: "la_name"},
	LevelLocalAuthorityDistrict:    {CodeColumns: []string{"lad_code"}, NameColumn: "lad_name"},
	LevelRscRegion:                 {CodeColumns: nil, NameColumn: "rsc_region_lead_name"},
	LevelParliamentaryConstituency: {CodeColumns: []string{"pcon_code"}, NameColumn: "pcon_name"},
	LevelWard:                      {CodeColumns: []string{"ward_code"}, NameColumn: "ward_name"},
	LevelSchool:                    {CodeColumns: []string{"school_urn", "school_laestab"}, NameColumn: "school_name"},
	LevelProvider:                  {CodeColumns: []string{"provider_ukprn"}, NameColumn: "provider_name"},
	LevelInstitution:               {CodeColumns: []string{"institution_id"}, NameColumn: "institution_name"},
}

func ColumnsForLevel(level GeographicLevel) (LevelColumns, bool) {
	c, ok := levelColumns[level]
	return c, ok
}

// ReservedColumns are data-file columns that are never filters or
// indicators: the time period pair, the level discriminator, and every
// geography column.
func ReservedColumns() map[string]struct{} {
	out := map[string]struct{}{
		"time_period":      {},
		"time_identifier":  {},
		"geographic_level": {},
	}
	for _, cols := range levelColumns {
		for _, c := range cols.CodeColumns {
			out[c] = struct{}{}
		}
		if cols.NameColumn != "" {
			out[cols.NameColumn] = struct{}{}
		}
	}
	return out
}
