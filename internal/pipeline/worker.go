package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgallion1/mdnorm/internal/normalize"
)

// Worker processes a single normalization job.
type Worker struct {
	normalizer *normalize.Normalizer
	log        *slog.Logger
}

func NewWorker(n *normalize.Normalizer, log *slog.Logger) *Worker {
	return &Worker{normalizer: n, log: log}
}

// Process reads, normalizes and optionally writes back one document.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "name", job.Name)

	if err := ctx.Err(); err != nil {
		job.Fail("queued", err)
		return
	}

	// Phase 1: Read
	var mode os.FileMode = 0o644
	if job.Path != "" {
		job.SetStatus(StatusReading, "reading")
		info, err := os.Stat(job.Path)
		if err != nil {
			log.Error("stat failed", "error", err)
			job.Fail("reading", err)
			return
		}
		mode = info.Mode().Perm()
		data, err := os.ReadFile(job.Path)
		if err != nil {
			log.Error("read failed", "error", err)
			job.Fail("reading", err)
			return
		}
		job.SetInput(data)
	}

	// Phase 2: Normalize
	job.SetStatus(StatusNormalizing, "normalizing")
	res, err := w.normalizer.Run(string(job.Input()))
	if err != nil {
		log.Error("normalize failed", "error", err)
		job.Fail("normalizing", err)
		return
	}
	job.SetCounts(res.Eligible, res.Rewritten, len(res.Failures))
	for _, f := range res.Failures {
		job.AddError(fmt.Sprintf("line %d: %s", f.Line, f.Message))
	}
	job.SetOutput(res.Text)
	log.Info("normalized",
		"eligible", res.Eligible,
		"rewritten", res.Rewritten,
		"nested_failures", len(res.Failures),
	)

	// Phase 3: Write
	if job.Write && job.Path != "" {
		job.SetStatus(StatusWriting, "writing")
		if err := os.WriteFile(job.Path, []byte(res.Text), mode); err != nil {
			log.Error("write failed", "error", err)
			job.Fail("writing", err)
			return
		}
	}

	job.SetStatus(StatusCompleted, "done")
}
