package csv_export_write

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/export"
	jobrt "github.com/opendatarepo/odr-backend/internal/jobs/runtime"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	var task domain.WriteTask
	if err := jc.Decode(&task); err != nil {
		return fmt.Errorf("decode write task: %w", err)
	}
	if err := jobrt.VerifyAPIKey(task.APIKey, p.apiKey); err != nil {
		return err
	}
	return p.WriteRow(jc.Ctx, task)
}

// WriteRow durably persists one finished row and drives job completion:
// claim first, then append, then increment, then maybe race for
// finalization. The claim insert is conditional on (job_id, record_id), so a
// redelivered task for an already-written record is a no-op and cannot
// double-count toward the progress counter. The temp file is named by a
// random key generated fresh for this invocation; no two writers ever target
// the same path.
func (p *Pipeline) WriteRow(ctx context.Context, task domain.WriteTask) error {
	dbc := dbctx.Context{Ctx: ctx}

	recordID := task.RecordID
	claim := &domain.WriteClaim{
		JobID:     task.JobID,
		RecordID:  &recordID,
		RandomKey: export.RandomKey(),
	}
	inserted, err := p.claims.InsertIfAbsent(dbc, claim)
	if err != nil {
		return fmt.Errorf("insert write claim: %w", err)
	}
	if !inserted {
		p.log.Warn("Duplicate write task ignored",
			"job_id", task.JobID,
			"record_id", task.RecordID,
		)
		return nil
	}

	if err := p.appendTempRow(task, claim.RandomKey); err != nil {
		// The claim landed but the row did not; the job will show as stuck
		// until the task is redelivered or the job is retired manually.
		return err
	}

	current, total, err := p.jobs.IncrementProgress(dbc, task.JobID)
	if err != nil {
		return fmt.Errorf("increment progress: %w", err)
	}
	if current < total {
		return nil
	}
	return p.raceForFinalization(ctx, task)
}

func (p *Pipeline) appendTempRow(task domain.WriteTask, randomKey string) error {
	dir := export.TempDir(p.exportDir, task.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	path := export.TempFilePath(p.exportDir, task.JobID, randomKey)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer f.Close()
	if err := export.WriteRow(f, task.Delimiter, task.Row); err != nil {
		return fmt.Errorf("write temp row: %w", err)
	}
	return nil
}

// raceForFinalization runs when this increment observed current >= total.
// Several workers can get here at once near the boundary; the conditional
// insert of the ticket claim admits exactly one, which writes the header and
// starts the merge chain. Losers stop silently.
func (p *Pipeline) raceForFinalization(ctx context.Context, task domain.WriteTask) error {
	dbc := dbctx.Context{Ctx: ctx}

	if _, err := p.jobs.MarkCompleted(dbc, task.JobID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	pending, err := p.claims.ListPending(dbc, task.JobID)
	if err != nil {
		return fmt.Errorf("list pending claims: %w", err)
	}
	refs := make([]domain.ClaimRef, 0, len(pending))
	for _, c := range pending {
		refs = append(refs, domain.ClaimRef{ClaimID: c.ID, RandomKey: c.RandomKey})
	}

	ticket := &domain.WriteClaim{
		JobID:     task.JobID,
		RandomKey: export.FinalizeTicketKey(refs),
		Finalize:  true,
	}
	won, err := p.claims.InsertIfAbsent(dbc, ticket)
	if err != nil {
		return fmt.Errorf("insert finalize ticket: %w", err)
	}
	if !won {
		return nil
	}

	finalFilename := export.FinalFilename(task.OwnerUserID, task.JobID)
	if err := p.createFinalFile(ctx, task, finalFilename); err != nil {
		return err
	}

	next := domain.FinalizeTask{
		JobID:         task.JobID,
		OwnerUserID:   task.OwnerUserID,
		FinalFilename: finalFilename,
		PendingClaims: refs,
		APIKey:        task.APIKey,
	}
	if err := p.queue.Put(ctx, domain.TubeCSVExportFinalize, next, p.chainDelay); err != nil {
		return fmt.Errorf("enqueue finalize task: %w", err)
	}
	p.log.Info("Finalization started",
		"job_id", task.JobID,
		"pending_claims", len(refs),
	)
	return nil
}

// createFinalFile writes the header row: the external-id column label
// followed by field names sorted by ascending field id, mirroring the cell
// order every row was built with.
func (p *Pipeline) createFinalFile(ctx context.Context, task domain.WriteTask, finalFilename string) error {
	dbc := dbctx.Context{Ctx: ctx}

	fields, err := p.fields.GetByIDs(dbc, task.FieldIDs)
	if err != nil {
		return fmt.Errorf("load fields for header: %w", err)
	}
	nameByID := make(map[string]string, len(fields))
	for _, f := range fields {
		nameByID[f.ID.String()] = f.FieldName
	}

	header := make([]string, 0, 1+len(task.FieldIDs))
	header = append(header, export.ExternalIDHeader)
	for _, id := range export.SortFieldIDs(task.FieldIDs) {
		header = append(header, nameByID[id.String()])
	}

	path := export.FinalFilePath(p.exportDir, finalFilename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create final file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := export.WriteRow(&buf, task.Delimiter, header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}
