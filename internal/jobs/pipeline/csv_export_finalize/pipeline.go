package csv_export_finalize

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/export"
	jobrt "github.com/opendatarepo/odr-backend/internal/jobs/runtime"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	var task domain.FinalizeTask
	if err := jc.Decode(&task); err != nil {
		return fmt.Errorf("decode finalize task: %w", err)
	}
	if err := jobrt.VerifyAPIKey(task.APIKey, p.apiKey); err != nil {
		return err
	}
	return p.MergeStep(jc.Ctx, task)
}

// MergeStep appends exactly one temp file to the final export, deletes that
// temp file and its claim row, then re-enqueues itself with the shortened
// pending list. Bounding each invocation to one file keeps individual queue
// jobs short; the chain carries the remaining work forward. An empty pending
// list means the merge is done: the ticket claim and the per-job temp
// directory are removed.
func (p *Pipeline) MergeStep(ctx context.Context, task domain.FinalizeTask) error {
	dbc := dbctx.Context{Ctx: ctx}

	if len(task.PendingClaims) == 0 {
		if err := p.claims.DeleteTicket(dbc, task.JobID); err != nil {
			return fmt.Errorf("delete finalize ticket: %w", err)
		}
		if err := os.RemoveAll(export.TempDir(p.exportDir, task.JobID)); err != nil {
			p.log.Warn("Temp dir cleanup failed", "job_id", task.JobID, "error", err)
		}
		p.log.Info("Export finalized",
			"job_id", task.JobID,
			"filename", task.FinalFilename,
		)
		return nil
	}

	head := task.PendingClaims[0]
	if err := p.appendTempFile(task, head.RandomKey); err != nil {
		return err
	}

	tempPath := export.TempFilePath(p.exportDir, task.JobID, head.RandomKey)
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("Temp file removal failed", "job_id", task.JobID, "path", tempPath, "error", err)
	}
	if err := p.claims.DeleteByID(dbc, head.ClaimID); err != nil {
		return fmt.Errorf("delete merged claim: %w", err)
	}

	next := task
	next.PendingClaims = task.PendingClaims[1:]
	if err := p.queue.Put(ctx, domain.TubeCSVExportFinalize, next, p.chainDelay); err != nil {
		return fmt.Errorf("enqueue next merge step: %w", err)
	}
	return nil
}

func (p *Pipeline) appendTempFile(task domain.FinalizeTask, randomKey string) error {
	tempPath := export.TempFilePath(p.exportDir, task.JobID, randomKey)
	src, err := os.Open(tempPath)
	if err != nil {
		if os.IsNotExist(err) {
			// A redelivered merge step already consumed this file. The claim
			// delete below is idempotent, so skipping keeps the chain moving.
			p.log.Warn("Temp file already merged", "job_id", task.JobID, "path", tempPath)
			return nil
		}
		return fmt.Errorf("open temp file: %w", err)
	}
	defer src.Close()

	finalPath := export.FinalFilePath(p.exportDir, task.FinalFilename)
	dst, err := os.OpenFile(finalPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open final file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("append temp file: %w", err)
	}
	return nil
}
