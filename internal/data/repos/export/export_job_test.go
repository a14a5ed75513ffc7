package export

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/opendatarepo/odr-backend/internal/data/repos/testutil"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
)

func TestExportJobCreateAndGet(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewExportJobRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	owner := uuid.New()
	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")

	job, err := repo.Create(dbc, &types.ExportJob{
		OwnerUserID: owner,
		JobType:     types.JobTypeCSVExport,
		DatatypeID:  datatype.ID,
		Total:       5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.ID == uuid.Nil {
		t.Fatal("job id not assigned")
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Total != 5 || got.Current != 0 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.Completed() {
		t.Fatal("fresh job reports completed")
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v", missing)
	}
}

func TestExportJobHasIncomplete(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewExportJobRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	owner := uuid.New()
	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")

	dup, err := repo.HasIncomplete(dbc, owner, datatype.ID, types.JobTypeCSVExport)
	if err != nil {
		t.Fatalf("has incomplete: %v", err)
	}
	if dup {
		t.Fatal("no jobs yet, expected false")
	}

	job := testutil.SeedExportJob(t, ctx, tx, owner, datatype.ID, 3)

	dup, err = repo.HasIncomplete(dbc, owner, datatype.ID, types.JobTypeCSVExport)
	if err != nil {
		t.Fatalf("has incomplete: %v", err)
	}
	if !dup {
		t.Fatal("expected running job to block a duplicate")
	}

	// Another owner or datatype is unaffected.
	if dup, _ := repo.HasIncomplete(dbc, uuid.New(), datatype.ID, types.JobTypeCSVExport); dup {
		t.Fatal("other owner blocked")
	}

	if _, err := repo.MarkCompleted(dbc, job.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	dup, err = repo.HasIncomplete(dbc, owner, datatype.ID, types.JobTypeCSVExport)
	if err != nil {
		t.Fatalf("has incomplete: %v", err)
	}
	if dup {
		t.Fatal("completed job still blocks")
	}
}

func TestExportJobIncrementProgress(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewExportJobRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	job := testutil.SeedExportJob(t, ctx, tx, uuid.New(), datatype.ID, 3)

	for want := int64(1); want <= 3; want++ {
		current, total, err := repo.IncrementProgress(dbc, job.ID)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if current != want || total != 3 {
			t.Fatalf("increment %d: got current=%d total=%d", want, current, total)
		}
	}
}

func TestExportJobIncrementProgressUnknownJob(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewExportJobRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	if _, _, err := repo.IncrementProgress(dbc, uuid.New()); err == nil {
		t.Fatal("increment on unknown job returned no error")
	}
}

// Runs on the shared connection rather than the per-test transaction; a
// transaction would serialize the goroutines and hide lost updates.
func TestExportJobIncrementProgressConcurrent(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewExportJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	const k = 32

	job := &types.ExportJob{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     types.JobTypeCSVExport,
		DatatypeID:  uuid.New(),
		Total:       k,
	}
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Delete(&types.ExportJob{}, "id = ?", job.ID).Error
	})

	var wg sync.WaitGroup
	errCh := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.IncrementProgress(dbc, job.ID); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent increment: %v", err)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Current != k {
		t.Fatalf("lost updates: current=%d, want %d", got.Current, k)
	}
}

func TestExportJobMarkCompletedStampsOnce(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewExportJobRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	job := testutil.SeedExportJob(t, ctx, tx, uuid.New(), datatype.ID, 1)

	first, err := repo.MarkCompleted(dbc, job.ID)
	if err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if !first {
		t.Fatal("first call did not stamp")
	}
	second, err := repo.MarkCompleted(dbc, job.ID)
	if err != nil {
		t.Fatalf("mark completed again: %v", err)
	}
	if second {
		t.Fatal("second call stamped again")
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || !got.Completed() {
		t.Fatalf("job not completed: %+v", got)
	}
}
