package sql2hub

import (
	"context"
	"database/sql"
	"time"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/autom8ter/sql2hub/publisher"
	"github.com/autom8ter/sql2hub/util"
	"github.com/segmentio/ksuid"
)

// RunSummary describes one completed run
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Rows      int           `json:"rows"`
	Batches   int           `json:"batches"`
	Published int           `json:"published"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Job runs the configured query and publishes every batch it produces
type Job struct {
	Config    *Config
	Connector Connector
	Publisher publisher.Publisher
	Logger    Logger
	db        *sql.DB
}

// OpenJob opens the database and the sink named by the config
func OpenJob(ctx context.Context, cfg *Config, logger Logger) (*Job, error) {
	if cfg == nil {
		return nil, errors.New(errors.Configuration, "config not specified")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pub, err := publisher.Open(cfg.Sink, cfg.PublisherParams())
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(ctx, cfg.Driver, cfg.ConnectionString)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	return &Job{
		Config:    cfg,
		Connector: DBConnector{DB: db},
		Publisher: pub,
		Logger:    logger,
		db:        db,
	}, nil
}

// Run executes the query once. Every batch is published as a json array.
// A failed publish is logged and counted and the run carries on with the next batch.
func (j *Job) Run(ctx context.Context) (*RunSummary, error) {
	if j.Config == nil || j.Connector == nil || j.Publisher == nil {
		return nil, errors.New(errors.Configuration, "job requires a config, a connector and a publisher")
	}
	logger := j.Logger
	if logger == nil {
		logger = NopLogger()
	}
	summary := &RunSummary{RunID: ksuid.New().String()}
	ctx = WithTags(ctx, map[string]any{TagRunID: summary.RunID})
	if j.Config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Config.RunTimeout)
		defer cancel()
	}
	start := time.Now()
	logger.Info(ctx, "starting run", map[string]any{
		TagQuery:            j.Config.Query,
		"connection_string": util.MaskSecret(j.Config.ConnectionString),
		"max_batch_size":    j.Config.MaxBatchSize,
	})
	executor, err := NewExecutor(j.Connector, j.Config.Query, j.Config.MaxBatchSize, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	it := executor.Batches(ctx)
	defer it.Close()
	for it.Next() {
		batch := it.Batch()
		summary.Batches++
		tags := map[string]any{
			"package":   summary.Batches,
			"documents": batch.Len(),
		}
		logger.Debug(ctx, "sending package", tags)
		if err := j.Publisher.Publish(ctx, batch.Bytes()); err != nil {
			summary.Failed++
			logger.Error(ctx, "failed to send package", err, tags)
			continue
		}
		summary.Published++
		logger.Info(ctx, "package sent", tags)
	}
	summary.Rows = it.Rows()
	summary.Duration = time.Since(start)
	tags := map[string]any{
		"rows":      summary.Rows,
		"batches":   summary.Batches,
		"published": summary.Published,
		"failed":    summary.Failed,
		"seconds":   summary.Duration.Seconds(),
	}
	if err := it.Err(); err != nil {
		logger.Error(ctx, "run failed", err, tags)
		return summary, err
	}
	if summary.Failed > 0 {
		logger.Warn(ctx, "run finished with unsent packages", tags)
		return summary, errors.New(errors.Publish, "%v of %v packages were not sent", summary.Failed, summary.Batches)
	}
	logger.Info(ctx, "run finished", tags)
	return summary, nil
}

// Close closes the publisher and the database opened by OpenJob
func (j *Job) Close() error {
	var err error
	if j.Publisher != nil {
		err = j.Publisher.Close()
	}
	if j.db != nil {
		if cerr := j.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
