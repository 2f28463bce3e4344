package domain

import "strings"

// TimeIdentifier is the code qualifying a 4-digit period, e.g. AY for an
// academic year or CYQ2 for the second quarter of a calendar year.
type TimeIdentifier string

const (
	TimeAcademicYear  TimeIdentifier = "AY"
	TimeCalendarYear  TimeIdentifier = "CY"
	TimeFinancialYear TimeIdentifier = "FY"
	TimeTaxYear       TimeIdentifier = "TY"
	TimeReportingYear TimeIdentifier = "RY"

	TimeAcademicYearQ1 TimeIdentifier = "AYQ1"
	TimeAcademicYearQ2 TimeIdentifier = "AYQ2"
	TimeAcademicYearQ3 TimeIdentifier = "AYQ3"
	TimeAcademicYearQ4 TimeIdentifier = "AYQ4"

	TimeCalendarYearQ1 TimeIdentifier = "CYQ1"
	TimeCalendarYearQ2 TimeIdentifier = "CYQ2"
	TimeCalendarYearQ3 TimeIdentifier = "CYQ3"
	TimeCalendarYearQ4 TimeIdentifier = "CYQ4"

	TimeFinancialYearQ1 TimeIdentifier = "FYQ1"
	TimeFinancialYearQ2 TimeIdentifier = "FYQ2"
	TimeFinancialYearQ3 TimeIdentifier = "FYQ3"
	TimeFinancialYearQ4 TimeIdentifier = "FYQ4"

	TimeJanuary   TimeIdentifier = "M1"
	TimeFebruary  TimeIdentifier = "M2"
	TimeMarch     TimeIdentifier = "M3"
	TimeApril     TimeIdentifier = "M4"
	TimeMay       TimeIdentifier = "M5"
	TimeJune      TimeIdentifier = "M6"
	TimeJuly      TimeIdentifier = "M7"
	TimeAugust    TimeIdentifier = "M8"
	TimeSeptember TimeIdentifier = "M9"
	TimeOctober   TimeIdentifier = "M10"
	TimeNovember  TimeIdentifier = "M11"
	TimeDecember  TimeIdentifier = "M12"

	TimeAutumnTerm TimeIdentifier = "T1"
	TimeSpringTerm TimeIdentifier = "T2"
	TimeSummerTerm TimeIdentifier = "T3"
)

// timeIdentifierOrder fixes the within-year ordering used for inclusive
// range comparisons. Annual identifiers sort before sub-year ones so a
// range starting at (2020, AY) includes (2020, AYQ2).
var timeIdentifierOrder = map[TimeIdentifier]int{
	TimeAcademicYear: 0, TimeCalendarYear: 1, TimeFinancialYear: 2,
	TimeTaxYear: 3, TimeReportingYear: 4,
	TimeAcademicYearQ1: 10, TimeAcademicYearQ2: 11, TimeAcademicYearQ3: 12, TimeAcademicYearQ4: 13,
	TimeCalendarYearQ1: 14, TimeCalendarYearQ2: 15, TimeCalendarYearQ3: 16, TimeCalendarYearQ4: 17,
	TimeFinancialYearQ1: 18, TimeFinancialYearQ2: 19, TimeFinancialYearQ3: 20, TimeFinancialYearQ4: 21,
	TimeJanuary: 30, TimeFebruary: 31, TimeMarch: 32, TimeApril: 33, TimeMay: 34, TimeJune: 35,
	TimeJuly: 36, TimeAugust: 37, TimeSeptember: 38, TimeOctober: 39, TimeNovember: 40, TimeDecember: 41,
	TimeAutumnTerm: 50, TimeSpringTerm: 51, TimeSummerTerm: 52,
}

func ParseTimeIdentifier(raw string) (TimeIdentifier, bool) {
	id := TimeIdentifier(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := timeIdentifierOrder[id]
	return id, ok
}

// TimePeriod is an ordered (year, identifier) pair.
type TimePeriod struct {
	Year int
	Code TimeIdentifier
}

// Compare orders two periods by year first, identifier order second.
func (p TimePeriod) Compare(other TimePeriod) int {
	if p.Year != other.Year {
		if p.Year < other.Year {
			return -1
		}
		return 1
	}
	a, b := timeIdentifierOrder[p.Code], timeIdentifierOrder[other.Code]
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// InRange reports whether p falls inside [start, end] inclusive.
func (p TimePeriod) InRange(start, end TimePeriod) bool {
	return p.Compare(start) >= 0 && p.Compare(end) <= 0
}
