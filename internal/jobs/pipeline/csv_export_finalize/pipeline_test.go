package csv_export_finalize

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	exportrepos "github.com/opendatarepo/odr-backend/internal/data/repos/export"
	"github.com/opendatarepo/odr-backend/internal/data/repos/testutil"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/export"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
)

type queuedTask struct {
	Tube    string
	Payload []byte
	Delay   time.Duration
}

type fakeQueue struct {
	mu   sync.Mutex
	puts []queuedTask
}

func (q *fakeQueue) Put(_ context.Context, tube string, payload any, delay time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.puts = append(q.puts, queuedTask{Tube: tube, Payload: raw, Delay: delay})
	return nil
}

func (q *fakeQueue) Reserve(context.Context, string, time.Duration) ([]byte, error) {
	return nil, nil
}

func (q *fakeQueue) pop(t *testing.T) (types.FinalizeTask, bool) {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.puts) == 0 {
		return types.FinalizeTask{}, false
	}
	put := q.puts[0]
	q.puts = q.puts[1:]
	if put.Tube != types.TubeCSVExportFinalize {
		t.Fatalf("task on wrong tube %s", put.Tube)
	}
	var task types.FinalizeTask
	if err := json.Unmarshal(put.Payload, &task); err != nil {
		t.Fatalf("decode finalize task: %v", err)
	}
	return task, true
}

func TestMergeStepChainsUntilPendingListEmpties(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: ctx}

	exportDir := t.TempDir()
	queue := &fakeQueue{}
	claimRepo := exportrepos.NewWriteClaimRepo(tx, log)

	jobID := uuid.New()
	owner := uuid.New()

	// Three written rows waiting to merge, one temp file each.
	rows := []string{"rec-a,Ada\n", "rec-b,Bob\n", "rec-c,Cyd\n"}
	if err := os.MkdirAll(export.TempDir(exportDir, jobID), 0o755); err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	var refs []types.ClaimRef
	for i, row := range rows {
		claim := &types.WriteClaim{
			JobID:     jobID,
			RecordID:  testutil.PtrUUID(uuid.New()),
			RandomKey: export.RandomKey(),
		}
		if _, err := claimRepo.InsertIfAbsent(dbc, claim); err != nil {
			t.Fatalf("insert claim %d: %v", i, err)
		}
		refs = append(refs, types.ClaimRef{ClaimID: claim.ID, RandomKey: claim.RandomKey})
		path := export.TempFilePath(exportDir, jobID, claim.RandomKey)
		if err := os.WriteFile(path, []byte(row), 0o644); err != nil {
			t.Fatalf("write temp %d: %v", i, err)
		}
	}
	if _, err := claimRepo.InsertIfAbsent(dbc, &types.WriteClaim{
		JobID:     jobID,
		RandomKey: export.FinalizeTicketKey(refs),
		Finalize:  true,
	}); err != nil {
		t.Fatalf("insert ticket: %v", err)
	}

	finalFilename := export.FinalFilename(owner, jobID)
	header := export.ExternalIDHeader + ",Name\n"
	if err := os.WriteFile(export.FinalFilePath(exportDir, finalFilename), []byte(header), 0o644); err != nil {
		t.Fatalf("write final header: %v", err)
	}

	p := New(tx, log, claimRepo, queue, "secret", exportDir)

	task := types.FinalizeTask{
		JobID:         jobID,
		OwnerUserID:   owner,
		FinalFilename: finalFilename,
		PendingClaims: refs,
		APIKey:        "secret",
	}
	steps := 0
	for {
		if err := p.MergeStep(ctx, task); err != nil {
			t.Fatalf("merge step %d: %v", steps, err)
		}
		steps++
		if steps > 10 {
			t.Fatal("merge chain never terminated")
		}
		next, ok := queue.pop(t)
		if !ok {
			break
		}
		if len(next.PendingClaims) != len(task.PendingClaims)-1 {
			t.Fatalf("step %d did not shrink pending list: %d -> %d",
				steps, len(task.PendingClaims), len(next.PendingClaims))
		}
		task = next
	}
	// One step per temp file plus the terminating empty-list step.
	if steps != len(rows)+1 {
		t.Fatalf("merge took %d steps, want %d", steps, len(rows)+1)
	}

	raw, err := os.ReadFile(export.FinalFilePath(exportDir, finalFilename))
	if err != nil {
		t.Fatalf("read final file: %v", err)
	}
	want := header + rows[0] + rows[1] + rows[2]
	if string(raw) != want {
		t.Fatalf("final file:\n%q\nwant:\n%q", raw, want)
	}

	count, err := claimRepo.CountForJob(dbc, jobID)
	if err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if count != 0 {
		t.Fatalf("claims survived finalization: %d", count)
	}
	if _, err := os.Stat(export.TempDir(exportDir, jobID)); !os.IsNotExist(err) {
		t.Fatalf("temp dir survived finalization: %v", err)
	}
}

func TestMergeStepToleratesAlreadyMergedTempFile(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: ctx}

	exportDir := t.TempDir()
	queue := &fakeQueue{}
	claimRepo := exportrepos.NewWriteClaimRepo(tx, log)

	jobID := uuid.New()
	claim := &types.WriteClaim{
		JobID:     jobID,
		RecordID:  testutil.PtrUUID(uuid.New()),
		RandomKey: export.RandomKey(),
	}
	if _, err := claimRepo.InsertIfAbsent(dbc, claim); err != nil {
		t.Fatalf("insert claim: %v", err)
	}

	finalFilename := export.FinalFilename(uuid.New(), jobID)
	if err := os.WriteFile(export.FinalFilePath(exportDir, finalFilename), []byte("h\n"), 0o644); err != nil {
		t.Fatalf("write final: %v", err)
	}

	p := New(tx, log, claimRepo, queue, "secret", exportDir)

	// No temp file on disk for this claim; the redelivered step skips the
	// append but still advances the chain.
	err := p.MergeStep(ctx, types.FinalizeTask{
		JobID:         jobID,
		FinalFilename: finalFilename,
		PendingClaims: []types.ClaimRef{{ClaimID: claim.ID, RandomKey: claim.RandomKey}},
		APIKey:        "secret",
	})
	if err != nil {
		t.Fatalf("merge step: %v", err)
	}
	next, ok := queue.pop(t)
	if !ok {
		t.Fatal("chain did not continue")
	}
	if len(next.PendingClaims) != 0 {
		t.Fatalf("pending list not consumed: %+v", next.PendingClaims)
	}
}
