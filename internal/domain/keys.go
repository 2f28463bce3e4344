package domain

import "fmt"

// Natural keys are the stable business identities used to align dimension
// options across versions. Renaming a label keeps the key; moving an
// option to a different code or level makes a new one.

// LocationKey identifies a location option by (level, primary code). RSC
// regions carry no code, so their label is the identity.
func LocationKey(level GeographicLevel, code, label string) string {
	if code == "" {
		return fmt.Sprintf("%s|%s", level, label)
	}
	return fmt.Sprintf("%s|%s", level, code)
}

func FilterKey(columnName string) string { return columnName }

func FilterOptionKey(columnName, optionLabel string) string {
	return fmt.Sprintf("%s|%s", columnName, optionLabel)
}

func IndicatorKey(columnName string) string { return columnName }

func TimePeriodKey(year int, code TimeIdentifier) string {
	return fmt.Sprintf("%d|%s", year, code)
}
