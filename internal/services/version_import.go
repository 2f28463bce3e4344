// Package services holds the application-facing orchestration entry
// points: creating the rows a pipeline run needs and handing the run to
// the workflow engine.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openstats/datasetsvc/internal/data/repos"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/temporalx"
	"github.com/openstats/datasetsvc/internal/temporalx/versionimport"
)

// StartImportInput describes one candidate version. DataSetID is empty for
// a brand-new data set, in which case Title/PublisherID create one.
type StartImportInput struct {
	DataSetID    uuid.UUID
	Title        string
	Summary      string
	PublisherID  uuid.UUID
	DataFilePath string
	MetaFilePath string
	Notes        string
}

type StartImportResult struct {
	DataSetID  uuid.UUID
	VersionID  uuid.UUID
	SubjectID  uuid.UUID
	ImportID   uuid.UUID
	WorkflowID string
	RunID      string
}

type VersionImportService interface {
	StartImport(ctx context.Context, in StartImportInput) (*StartImportResult, error)
	// ResumeImport re-triggers the workflow for a Failed import; completed
	// stages skip themselves, so the run picks up where it stopped.
	ResumeImport(ctx context.Context, importID uuid.UUID) (*StartImportResult, error)
}

type versionImportService struct {
	log      *logger.Logger
	db       *gorm.DB
	sets     repos.DataSetRepo
	versions repos.DataSetVersionRepo
	imports  repos.DataSetVersionImportRepo
	tc       temporalsdkclient.Client
}

func NewVersionImportService(
	baseLog *logger.Logger,
	db *gorm.DB,
	sets repos.DataSetRepo,
	versions repos.DataSetVersionRepo,
	imports repos.DataSetVersionImportRepo,
	tc temporalsdkclient.Client,
) VersionImportService {
	return &versionImportService{
		log:      baseLog.With("service", "VersionImportService"),
		db:       db,
		sets:     sets,
		versions: versions,
		imports:  imports,
		tc:       tc,
	}
}

func (s *versionImportService) StartImport(ctx context.Context, in StartImportInput) (*StartImportResult, error) {
	if strings.TrimSpace(in.DataFilePath) == "" || strings.TrimSpace(in.MetaFilePath) == "" {
		return nil, pkgerrors.ErrInvalidArgument
	}

	var (
		set     *types.DataSet
		version *types.DataSetVersion
		imp     *types.DataSetVersionImport
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)

		var err error
		if in.DataSetID != uuid.Nil {
			set, err = s.sets.GetByID(dbc, in.DataSetID)
			if err != nil {
				return err
			}
		} else {
			if strings.TrimSpace(in.Title) == "" || in.PublisherID == uuid.Nil {
				return pkgerrors.ErrInvalidArgument
			}
			created, err := s.sets.Create(dbc, []*types.DataSet{{
				Title:       strings.TrimSpace(in.Title),
				Summary:     strings.TrimSpace(in.Summary),
				PublisherID: in.PublisherID,
				Status:      types.DataSetStatusDraft,
			}})
			if err != nil {
				return err
			}
			set = created[0]
		}

		// One import at a time per data set: concurrent runs would race for
		// the same provisional version number and directory.
		active, err := s.imports.GetActiveByDataSet(dbc, set.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("import %s is still %s for data set %s: %w",
				active.ID, active.Status, set.ID, pkgerrors.ErrConflict)
		}

		// Provisional number: the mapping stage renumbers per the computed
		// bump before the version ever publishes.
		major, minor, patch := 1, 0, 0
		latest, err := s.versions.GetLatestPublished(dbc, set.ID)
		if err != nil {
			return err
		}
		if latest != nil {
			major, minor, patch = latest.VersionMajor, latest.VersionMinor, latest.VersionPatch+1
		}

		version = &types.DataSetVersion{
			DataSetID:    set.ID,
			SubjectID:    uuid.New(),
			VersionMajor: major,
			VersionMinor: minor,
			VersionPatch: patch,
			Status:       types.DataSetVersionStatusDraft,
			Notes:        strings.TrimSpace(in.Notes),
		}
		version.Directory = version.DefaultDirectory()
		if _, err := s.versions.Create(dbc, []*types.DataSetVersion{version}); err != nil {
			return err
		}

		imp = &types.DataSetVersionImport{
			DataSetVersionID: version.ID,
			InstanceID:       uuid.New(),
			Status:           types.ImportStatusNotStarted,
			Stage:            types.StageValidate,
			DataFilePath:     in.DataFilePath,
			MetaFilePath:     in.MetaFilePath,
			CompletedStages:  datatypes.JSON("[]"),
		}
		created, err := s.imports.Create(dbc, []*types.DataSetVersionImport{imp})
		if err != nil {
			return err
		}
		imp = created[0]
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	workflowID, runID, err := s.startWorkflow(ctx, imp)
	if err != nil {
		return nil, err
	}
	s.log.Info("started version import",
		"dataSetID", set.ID, "versionID", version.ID, "importID", imp.ID, "workflowID", workflowID,
	)
	return &StartImportResult{
		DataSetID:  set.ID,
		VersionID:  version.ID,
		SubjectID:  version.SubjectID,
		ImportID:   imp.ID,
		WorkflowID: workflowID,
		RunID:      runID,
	}, nil
}

func (s *versionImportService) ResumeImport(ctx context.Context, importID uuid.UUID) (*StartImportResult, error) {
	dbc := dbctx.New(ctx)
	imp, err := s.imports.GetByID(dbc, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status != types.ImportStatusFailed {
		return nil, pkgerrors.ErrConflict
	}
	version, err := s.versions.GetByID(dbc, imp.DataSetVersionID)
	if err != nil {
		return nil, err
	}

	workflowID, runID, err := s.startWorkflow(ctx, imp)
	if err != nil {
		return nil, err
	}
	s.log.Info("resumed version import", "importID", imp.ID, "workflowID", workflowID)
	return &StartImportResult{
		DataSetID:  version.DataSetID,
		VersionID:  version.ID,
		SubjectID:  version.SubjectID,
		ImportID:   imp.ID,
		WorkflowID: workflowID,
		RunID:      runID,
	}, nil
}

func (s *versionImportService) startWorkflow(ctx context.Context, imp *types.DataSetVersionImport) (string, string, error) {
	if s.tc == nil {
		return "", "", fmt.Errorf("temporal client is not configured")
	}
	cfg := temporalx.LoadConfig()
	workflowID := "version-import-" + imp.InstanceID.String()
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.TaskQueue,
	}, versionimport.WorkflowName, versionimport.Input{ImportID: imp.ID})
	if err != nil {
		return "", "", err
	}
	return run.GetID(), run.GetRunID(), nil
}
