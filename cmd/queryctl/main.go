package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/db"
	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/platform/envutil"
	"github.com/openstats/datasetsvc/internal/query"
	"github.com/openstats/datasetsvc/internal/services"
)

func main() {
	var (
		path    string
		sqlOnly bool
	)
	flag.StringVar(&path, "query", "", "path to a JSON query file")
	flag.BoolVar(&sqlOnly, "sql", false, "print the compiled SQL instead of executing")
	flag.Parse()

	if path == "" {
		fmt.Println("missing -query")
		os.Exit(1)
	}

	q, err := readQuery(path)
	if err != nil {
		fmt.Printf("read query: %v\n", err)
		os.Exit(1)
	}

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

	store := columnar.NewService(envutil.String("DATA_ROOT", "./data"), log)
	translator := query.New(
		log,
		repos.NewDataSetVersionRepo(thePG, log),
		repos.NewLocationMetaRepo(thePG, log),
		repos.NewFilterMetaRepo(thePG, log),
		repos.NewIndicatorMetaRepo(thePG, log),
		repos.NewTimePeriodMetaRepo(thePG, log),
		store,
	)
	svc := services.NewQueryService(log, translator, store)

	ctx := context.Background()
	if sqlOnly {
		tr, err := svc.Translate(ctx, q)
		if err != nil {
			fmt.Printf("translate: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(tr.SQL)
		for i, a := range tr.Args {
			fmt.Printf("  $%d = %v\n", i+1, a)
		}
		return
	}

	res, err := svc.Run(ctx, q)
	if err != nil {
		fmt.Printf("run query: %v\n", err)
		os.Exit(1)
	}

	w := csv.NewWriter(os.Stdout)
	_ = w.Write(res.Columns)
	for _, row := range res.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				rec[i] = fmt.Sprintf("%v", v)
			}
		}
		_ = w.Write(rec)
	}
	w.Flush()
}

func readQuery(path string) (*query.FullTableQuery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var q query.FullTableQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	if q.SubjectID == uuid.Nil {
		return nil, fmt.Errorf("query file is missing subject_id")
	}
	return &q, nil
}
