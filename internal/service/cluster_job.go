package service

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/gene-heatmap/server/internal/cache"
	"github.com/gene-heatmap/server/internal/cluster"
	"github.com/gene-heatmap/server/internal/jobstore"
)

// ClusterJobRunner dispatches stored clustering jobs to the service owning
// the job's dataset.
type ClusterJobRunner struct {
	registry interface {
		Get(datasetID string) *ExpressionService
	}
}

// NewClusterJobRunner creates a new cluster job runner.
func NewClusterJobRunner(registry interface{ Get(datasetID string) *ExpressionService }) *ClusterJobRunner {
	return &ClusterJobRunner{registry: registry}
}

// Run executes a stored job (called by the job manager worker).
func (r *ClusterJobRunner) Run(ctx context.Context, store *jobstore.Store, jobID string) error {
	job, err := store.GetJob(jobID)
	if err != nil {
		return errors.Wrap(err, "loading job")
	}
	if job == nil {
		return errors.Newf("job not found: %s", jobID)
	}

	svc := r.registry.Get(job.Params.DatasetID)
	if svc == nil {
		return errors.Newf("dataset not found: %s", job.Params.DatasetID)
	}
	return svc.ExecuteClusterJob(ctx, store, jobID)
}

// jobPhases is the full phase sequence of a clustering job. Degenerate
// axes skip their clustering phase, so reported progress may jump.
var jobPhases = []string{
	"loading",
	"normalizing",
	"clustering_rows",
	"clustering_cols",
	"reordering",
	"saving",
}

// ExecuteClusterJob runs the clustering pipeline for a stored job (called by
// the job manager worker). Progress is written through the store as each
// phase begins; the result is persisted there and also warms the sync-path
// result cache.
func (s *ExpressionService) ExecuteClusterJob(ctx context.Context, store *jobstore.Store, jobID string) error {
	job, err := store.GetJob(jobID)
	if err != nil {
		return errors.Wrap(err, "loading job")
	}
	if job == nil {
		return errors.Newf("job not found: %s", jobID)
	}

	step := 0
	report := func(phase string) {
		step++
		store.UpdateJobProgress(jobID, phase, step, len(jobPhases))
	}

	report("loading")
	m, err := s.Submatrix(job.Params.Genes)
	if err != nil {
		return err
	}
	store.UpdateJobCounts(jobID, m.Rows(), m.Cols())

	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := cluster.Run(ctx, m, cluster.Options{
		Method:  s.linkage,
		OnPhase: report,
	})
	if err != nil {
		return err
	}

	report("saving")
	payload, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	if err := store.SaveResult(jobID, payload); err != nil {
		return errors.Wrap(err, "saving result")
	}

	if s.cache != nil {
		s.cache.SetResult(cache.ResultKey(s.datasetID, s.linkage.String(), job.Params.Genes), payload)
	}
	return nil
}
