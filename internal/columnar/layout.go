package columnar

import (
	"path/filepath"
)

// File names inside a data-set version directory. The parquet files and the
// database file are written once at Finalize and never rewritten; the
// original CSVs are retained for re-processing.
const (
	DataParquetFile          = "data.parquet"
	FiltersParquetFile       = "filters.parquet"
	FilterOptionsParquetFile = "filterOptions.parquet"
	LocationsParquetFile     = "locations.parquet"
	TimePeriodsParquetFile   = "timePeriods.parquet"
	IndicatorsParquetFile    = "indicators.parquet"

	DataCSVFile    = "data.csv"
	DataCSVGzFile  = "data.csv.gz"
	MetaCSVFile    = "data.meta.csv"
	MetaCSVGzFile  = "data.meta.csv.gz"
	LoadScriptFile = "load.sql"
)

// DatabaseFileName is the engine file for one version,
// "{dataSetVersionId}.duckdb". Keying the file by version id keeps two
// Draft versions sharing a provisional directory from staging into each
// other's engine.
func DatabaseFileName(versionID string) string {
	return versionID + ".duckdb"
}

// Layout resolves absolute paths for one version's files under the storage
// root. Directory is the version's root-relative directory,
// "{dataSetId}/v{version}".
type Layout struct {
	Root      string
	Directory string
}

func NewLayout(root, directory string) Layout {
	return Layout{Root: root, Directory: directory}
}

func (l Layout) Dir() string             { return filepath.Join(l.Root, filepath.FromSlash(l.Directory)) }
func (l Layout) Path(name string) string { return filepath.Join(l.Dir(), name) }
func (l Layout) DatabasePath(versionID string) string {
	return l.Path(DatabaseFileName(versionID))
}
func (l Layout) DataParquetPath() string { return l.Path(DataParquetFile) }
func (l Layout) LoadScriptPath() string  { return l.Path(LoadScriptFile) }
