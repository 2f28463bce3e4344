package services

import (
	"context"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/query"
)

// QueryResult carries the rows a full-table query produced, column order
// matching the compiled select list.
type QueryResult struct {
	Columns []string
	Rows    [][]interface{}
}

type QueryService interface {
	// Translate compiles a query without executing it.
	Translate(ctx context.Context, q *query.FullTableQuery) (*query.Translation, error)
	// Run compiles and executes a query against the version's parquet data.
	Run(ctx context.Context, q *query.FullTableQuery) (*QueryResult, error)
}

type queryService struct {
	log        *logger.Logger
	translator *query.Translator
	store      *columnar.Service
}

func NewQueryService(baseLog *logger.Logger, translator *query.Translator, store *columnar.Service) QueryService {
	return &queryService{
		log:        baseLog.With("service", "QueryService"),
		translator: translator,
		store:      store,
	}
}

func (s *queryService) Translate(ctx context.Context, q *query.FullTableQuery) (*query.Translation, error) {
	return s.translator.Translate(dbctx.New(ctx), q)
}

func (s *queryService) Run(ctx context.Context, q *query.FullTableQuery) (*QueryResult, error) {
	tr, err := s.Translate(ctx, q)
	if err != nil {
		return nil, err
	}

	eng, err := s.store.OpenMemory()
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	rows, err := eng.SQL().QueryContext(ctx, tr.SQL, tr.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.log.Debug("query executed", "version", tr.Version.ID, "rows", len(out.Rows))
	return out, nil
}
