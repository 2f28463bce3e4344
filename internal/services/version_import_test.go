package services

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

func TestStartImportRequiresBothFilePaths(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc := NewVersionImportService(log, nil, nil, nil, nil, nil)

	cases := []StartImportInput{
		{MetaFilePath: "/tmp/data.meta.csv"},
		{DataFilePath: "/tmp/data.csv"},
		{DataFilePath: "   ", MetaFilePath: "/tmp/data.meta.csv"},
	}
	for _, in := range cases {
		if _, err := svc.StartImport(context.Background(), in); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for %+v, got %v", in, err)
		}
	}
}
