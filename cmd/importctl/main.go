package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/openstats/datasetsvc/internal/data/db"
	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/platform/envutil"
	"github.com/openstats/datasetsvc/internal/services"
	"github.com/openstats/datasetsvc/internal/temporalx"
)

func main() {
	var (
		dataFile  string
		metaFile  string
		dataSet   string
		title     string
		summary   string
		publisher string
		notes     string
		resume    string
	)
	flag.StringVar(&dataFile, "data", "", "path to the data CSV file")
	flag.StringVar(&metaFile, "meta", "", "path to the metadata CSV file")
	flag.StringVar(&dataSet, "dataset", "", "existing data set id (omit to create a new one)")
	flag.StringVar(&title, "title", "", "title for a new data set")
	flag.StringVar(&summary, "summary", "", "summary for a new data set")
	flag.StringVar(&publisher, "publisher", "", "publisher id for a new data set")
	flag.StringVar(&notes, "notes", "", "version notes")
	flag.StringVar(&resume, "resume", "", "import id of a failed run to resume")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		fmt.Printf("init postgres: %v\n", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	tc, err := temporalx.NewClient(log)
	if err != nil || tc == nil {
		fmt.Printf("init temporal client: %v\n", err)
		os.Exit(1)
	}
	defer tc.Close()

	svc := services.NewVersionImportService(
		log,
		thePG,
		repos.NewDataSetRepo(thePG, log),
		repos.NewDataSetVersionRepo(thePG, log),
		repos.NewDataSetVersionImportRepo(thePG, log),
		tc,
	)

	ctx := context.Background()

	if resume != "" {
		importID, err := uuid.Parse(resume)
		if err != nil {
			fmt.Printf("invalid import id %q: %v\n", resume, err)
			os.Exit(1)
		}
		res, err := svc.ResumeImport(ctx, importID)
		if err != nil {
			fmt.Printf("resume import: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("resumed import %s (workflow %s run %s)\n", res.ImportID, res.WorkflowID, res.RunID)
		return
	}

	in := services.StartImportInput{
		Title:        title,
		Summary:      summary,
		DataFilePath: dataFile,
		MetaFilePath: metaFile,
		Notes:        notes,
	}
	if dataSet != "" {
		id, err := uuid.Parse(dataSet)
		if err != nil {
			fmt.Printf("invalid data set id %q: %v\n", dataSet, err)
			os.Exit(1)
		}
		in.DataSetID = id
	}
	if publisher != "" {
		id, err := uuid.Parse(publisher)
		if err != nil {
			fmt.Printf("invalid publisher id %q: %v\n", publisher, err)
			os.Exit(1)
		}
		in.PublisherID = id
	}

	res, err := svc.StartImport(ctx, in)
	if err != nil {
		fmt.Printf("start import: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("started import %s for version %s (subject %s, workflow %s)\n",
		res.ImportID, res.VersionID, res.SubjectID, res.WorkflowID)
}
