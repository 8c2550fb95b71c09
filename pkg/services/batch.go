package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/config"
	"github.com/datakiln/ingest-engine/pkg/models"
	"github.com/datakiln/ingest-engine/pkg/services/workqueue"
)

// BatchFile is one member of an explicit multi-file batch.
type BatchFile struct {
	Name  string
	Data  []byte
	Hints models.IngestHints
}

// BatchCoordinator drives multi-file and archive ingestion with
// partial-failure semantics: one entry's failure never aborts the rest, and
// report order follows input order. It also recombines tables.
type BatchCoordinator interface {
	// ProcessBatch ingests independent files. Entries run in parallel up to
	// the configured worker count.
	ProcessBatch(ctx context.Context, files []BatchFile) *models.BatchReport

	// ProcessArchive extracts a zip or tar archive and ingests every
	// supported entry. A corrupt container is the only whole-call failure:
	// the report comes back with total=0 and a single batch-level error.
	ProcessArchive(ctx context.Context, data []byte, name string) *models.BatchReport

	// Combine merges tables by concat, union or intersect semantics.
	Combine(tables []*models.Table, method CombineMethod) (*models.Table, error)
}

type batchCoordinator struct {
	processor FormatProcessor
	workers   int
	// maxEntryBytes caps how much a single archive member may expand to
	// during extraction.
	maxEntryBytes int64
	logger        *zap.Logger
}

// NewBatchCoordinator creates a coordinator around the format processor.
func NewBatchCoordinator(processor FormatProcessor, cfg config.IngestConfig, logger *zap.Logger) BatchCoordinator {
	return &batchCoordinator{
		processor:     processor,
		workers:       cfg.Workers,
		maxEntryBytes: cfg.MaxFileSizeBytes,
		logger:        logger.Named("batch-coordinator"),
	}
}

// entryOutcome holds one entry's processing result, index-aligned with the
// submitted entries.
type entryOutcome struct {
	table *models.Table
	meta  *models.FileMetadata
}

func (c *batchCoordinator) ProcessBatch(ctx context.Context, files []BatchFile) *models.BatchReport {
	report := models.NewBatchReport()
	if len(files) == 0 {
		return report
	}

	outcomes := make([]entryOutcome, len(files))
	tasks := make([]workqueue.Task, len(files))
	for i, file := range files {
		tasks[i] = workqueue.Task{
			ID:   uuid.NewString(),
			Name: file.Name,
			Run: func(taskCtx context.Context) error {
				table, meta, err := c.processor.Process(taskCtx, file.Data, file.Name, file.Hints)
				if err != nil {
					return err
				}
				outcomes[i] = entryOutcome{table: table, meta: meta}
				return nil
			},
		}
	}

	queue := workqueue.New(c.logger, workqueue.WithStrategy(workqueue.NewThrottledStrategy(c.workers)))
	results := queue.Run(ctx, tasks)

	for i, res := range results {
		path := files[i].Name
		switch res.Status {
		case workqueue.TaskStatusCompleted:
			report.AddSuccess(path, outcomes[i].table, outcomes[i].meta)
		case workqueue.TaskStatusCancelled:
			report.AddFailure(path, fmt.Sprintf("%s: cancelled before processing: %v", path, res.Err))
		default:
			report.AddFailure(path, res.Err.Error())
		}
	}

	c.logger.Info("batch processed",
		zap.Int("total", report.Total),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return report
}
