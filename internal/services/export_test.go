package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	exportrepos "github.com/opendatarepo/odr-backend/internal/data/repos/export"
	"github.com/opendatarepo/odr-backend/internal/data/repos/meta"
	"github.com/opendatarepo/odr-backend/internal/data/repos/testutil"
	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/platform/apierr"
	"github.com/opendatarepo/odr-backend/internal/platform/ctxutil"
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

type fakeRecordLists struct {
	mu    sync.Mutex
	lists map[string][]uuid.UUID
}

func newFakeRecordLists() *fakeRecordLists {
	return &fakeRecordLists{lists: map[string][]uuid.UUID{}}
}

func (f *fakeRecordLists) PutRecordList(_ context.Context, ids []uuid.UUID, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.lists[token] = ids
	return token, nil
}

func (f *fakeRecordLists) TakeRecordList(_ context.Context, token string) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.lists[token]
	if !ok {
		return nil, nil
	}
	delete(f.lists, token)
	return ids, nil
}

func userCtx(owner uuid.UUID) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: owner})
}

func TestStartExportFansOutBuildTasks(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	owner := uuid.New()
	ctx := userCtx(owner)
	dbc := dbctx.Context{Ctx: ctx}

	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	name := testutil.SeedDatafield(t, ctx, tx, datatype.ID, "Name", types.FieldTypeText)
	tags := testutil.SeedDatafield(t, ctx, tx, datatype.ID, "Tags", types.FieldTypeMultiChoice)

	queue := &fakeQueue{}
	lists := newFakeRecordLists()
	svc := NewExportService(
		tx, log,
		exportrepos.NewExportJobRepo(tx, log),
		meta.NewDatafieldRepo(tx, log),
		queue, lists, "secret", t.TempDir(),
	)

	records := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	token, err := svc.StashRecordList(ctx, records)
	if err != nil {
		t.Fatalf("stash: %v", err)
	}

	job, err := svc.StartExport(dbc, StartExportInput{
		DatatypeID:         datatype.ID,
		FieldIDs:           []uuid.UUID{name.ID, tags.ID},
		Delimiter:          "comma",
		SecondaryDelimiter: "pipe",
		RecordListToken:    token,
	})
	if err != nil {
		t.Fatalf("start export: %v", err)
	}
	if job.Total != int64(len(records)) || job.OwnerUserID != owner {
		t.Fatalf("unexpected job: %+v", job)
	}

	if len(queue.puts) != len(records) {
		t.Fatalf("got %d enqueues, want %d", len(queue.puts), len(records))
	}
	seen := map[uuid.UUID]bool{}
	for _, put := range queue.puts {
		if put.Tube != types.TubeCSVExportStart {
			t.Fatalf("task on wrong tube %s", put.Tube)
		}
		if put.Delay != time.Second {
			t.Fatalf("fan-out delay = %v", put.Delay)
		}
		var task types.BuildTask
		if err := json.Unmarshal(put.Payload, &task); err != nil {
			t.Fatalf("decode build task: %v", err)
		}
		if task.JobID != job.ID || task.Delimiter != "," || task.SecondaryDelimiter != "|" {
			t.Fatalf("unexpected task: %+v", task)
		}
		if task.APIKey != "secret" {
			t.Fatal("task missing worker key")
		}
		seen[task.RecordID] = true
	}
	if len(seen) != len(records) {
		t.Fatalf("fan-out covered %d records, want %d", len(seen), len(records))
	}

	// The token is consumed; replaying it cannot start a second job.
	if ids, _ := lists.TakeRecordList(ctx, token); ids != nil {
		t.Fatal("record list token replayable")
	}
}

func TestStartExportDeduplicatesRecordList(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	owner := uuid.New()
	ctx := userCtx(owner)
	dbc := dbctx.Context{Ctx: ctx}

	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	name := testutil.SeedDatafield(t, ctx, tx, datatype.ID, "Name", types.FieldTypeText)

	queue := &fakeQueue{}
	lists := newFakeRecordLists()
	svc := NewExportService(
		tx, log,
		exportrepos.NewExportJobRepo(tx, log),
		meta.NewDatafieldRepo(tx, log),
		queue, lists, "secret", t.TempDir(),
	)

	a, b := uuid.New(), uuid.New()
	// A repeated id would inflate total past what the per-record claims can
	// ever count, leaving the job stuck short of completion.
	token, err := svc.StashRecordList(ctx, []uuid.UUID{a, b, a, a})
	if err != nil {
		t.Fatalf("stash: %v", err)
	}

	job, err := svc.StartExport(dbc, StartExportInput{
		DatatypeID:      datatype.ID,
		FieldIDs:        []uuid.UUID{name.ID},
		Delimiter:       "comma",
		RecordListToken: token,
	})
	if err != nil {
		t.Fatalf("start export: %v", err)
	}
	if job.Total != 2 {
		t.Fatalf("total = %d, want 2", job.Total)
	}
	if len(queue.puts) != 2 {
		t.Fatalf("got %d enqueues, want 2", len(queue.puts))
	}
	seen := map[uuid.UUID]bool{}
	for _, put := range queue.puts {
		var task types.BuildTask
		if err := json.Unmarshal(put.Payload, &task); err != nil {
			t.Fatalf("decode build task: %v", err)
		}
		if seen[task.RecordID] {
			t.Fatalf("record %s fanned out twice", task.RecordID)
		}
		seen[task.RecordID] = true
	}
	if !seen[a] || !seen[b] {
		t.Fatal("fan-out missed a distinct record")
	}
}

func TestStartExportValidation(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	owner := uuid.New()
	ctx := userCtx(owner)
	dbc := dbctx.Context{Ctx: ctx}

	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	name := testutil.SeedDatafield(t, ctx, tx, datatype.ID, "Name", types.FieldTypeText)
	tags := testutil.SeedDatafield(t, ctx, tx, datatype.ID, "Tags", types.FieldTypeMultiChoice)

	queue := &fakeQueue{}
	lists := newFakeRecordLists()
	svc := NewExportService(
		tx, log,
		exportrepos.NewExportJobRepo(tx, log),
		meta.NewDatafieldRepo(tx, log),
		queue, lists, "secret", t.TempDir(),
	)
	token, _ := svc.StashRecordList(ctx, []uuid.UUID{uuid.New()})

	cases := []struct {
		name string
		in   StartExportInput
		code string
	}{
		{
			name: "bad delimiter",
			in: StartExportInput{
				DatatypeID: datatype.ID, FieldIDs: []uuid.UUID{name.ID},
				Delimiter: "dash", RecordListToken: token,
			},
			code: apierr.CodeInvalidDelimiter,
		},
		{
			name: "unknown field",
			in: StartExportInput{
				DatatypeID: datatype.ID, FieldIDs: []uuid.UUID{uuid.New()},
				Delimiter: "comma", RecordListToken: token,
			},
			code: apierr.CodeInvalidField,
		},
		{
			name: "multi-choice without secondary delimiter",
			in: StartExportInput{
				DatatypeID: datatype.ID, FieldIDs: []uuid.UUID{tags.ID},
				Delimiter: "comma", RecordListToken: token,
			},
			code: apierr.CodeMissingSecondaryDelimiter,
		},
		{
			name: "unknown record list token",
			in: StartExportInput{
				DatatypeID: datatype.ID, FieldIDs: []uuid.UUID{name.ID},
				Delimiter: "comma", RecordListToken: "nope",
			},
			code: apierr.CodeRecordListMissing,
		},
	}
	for _, tc := range cases {
		_, err := svc.StartExport(dbc, tc.in)
		if !apierr.HasCode(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
	if len(queue.puts) != 0 {
		t.Fatalf("validation failures enqueued tasks: %+v", queue.puts)
	}
}

func TestStartExportRejectsDuplicateJob(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	owner := uuid.New()
	ctx := userCtx(owner)
	dbc := dbctx.Context{Ctx: ctx}

	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	name := testutil.SeedDatafield(t, ctx, tx, datatype.ID, "Name", types.FieldTypeText)
	testutil.SeedExportJob(t, ctx, tx, owner, datatype.ID, 2)

	lists := newFakeRecordLists()
	svc := NewExportService(
		tx, log,
		exportrepos.NewExportJobRepo(tx, log),
		meta.NewDatafieldRepo(tx, log),
		&fakeQueue{}, lists, "secret", t.TempDir(),
	)
	token, _ := svc.StashRecordList(ctx, []uuid.UUID{uuid.New()})

	_, err := svc.StartExport(dbc, StartExportInput{
		DatatypeID:      datatype.ID,
		FieldIDs:        []uuid.UUID{name.ID},
		Delimiter:       "comma",
		RecordListToken: token,
	})
	if !apierr.HasCode(err, apierr.CodeDuplicateJob) {
		t.Fatalf("expected duplicate_job, got %v", err)
	}
}

func TestResolveDownload(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	owner := uuid.New()
	ctx := userCtx(owner)
	dbc := dbctx.Context{Ctx: ctx}

	exportDir := t.TempDir()
	datatype := testutil.SeedDatatype(t, ctx, tx, "persons")
	job := testutil.SeedExportJob(t, ctx, tx, owner, datatype.ID, 1)

	jobRepo := exportrepos.NewExportJobRepo(tx, log)
	svc := NewExportService(
		tx, log, jobRepo,
		meta.NewDatafieldRepo(tx, log),
		&fakeQueue{}, newFakeRecordLists(), "secret", exportDir,
	)

	// Incomplete job: nothing to download yet.
	if _, _, err := svc.ResolveDownload(dbc, job.ID); !apierr.HasCode(err, apierr.CodeFileNotFound) {
		t.Fatalf("expected file_not_found for running job, got %v", err)
	}

	if _, err := jobRepo.MarkCompleted(dbc, job.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	// Completed but the file is gone from disk.
	if _, _, err := svc.ResolveDownload(dbc, job.ID); !apierr.HasCode(err, apierr.CodeFileNotFound) {
		t.Fatalf("expected file_not_found for missing file, got %v", err)
	}

	name := "export_" + owner.String() + "_" + job.ID.String() + ".csv"
	if err := os.WriteFile(filepath.Join(exportDir, name), []byte("h\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	path, filename, err := svc.ResolveDownload(dbc, job.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filename != name || path != exportDir+"/"+name {
		t.Fatalf("got %q %q", path, filename)
	}

	// Another user cannot see the job at all.
	otherDbc := dbctx.Context{Ctx: userCtx(uuid.New())}
	if _, _, err := svc.ResolveDownload(otherDbc, job.ID); !apierr.HasCode(err, apierr.CodeFileNotFound) {
		t.Fatalf("expected file_not_found for other user, got %v", err)
	}
}
