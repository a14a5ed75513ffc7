package csv_export_build

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/export"
	jobrt "github.com/opendatarepo/odr-backend/internal/jobs/runtime"
	"github.com/opendatarepo/odr-backend/internal/platform/apierr"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	var task domain.BuildTask
	if err := jc.Decode(&task); err != nil {
		return fmt.Errorf("decode build task: %w", err)
	}
	if err := jobrt.VerifyAPIKey(task.APIKey, p.apiKey); err != nil {
		return err
	}

	row, err := p.BuildRow(jc.Ctx, task)
	if err != nil {
		p.log.Error("Row build failed", "job_id", task.JobID, "record_id", task.RecordID, "error", err)
		return err
	}

	next := domain.WriteTask{
		JobID:       task.JobID,
		OwnerUserID: task.OwnerUserID,
		RecordID:    task.RecordID,
		FieldIDs:    task.FieldIDs,
		Delimiter:   task.Delimiter,
		Row:         row,
		APIKey:      task.APIKey,
	}
	if err := p.queue.Put(jc.Ctx, domain.TubeCSVExportWorker, next, 0); err != nil {
		return fmt.Errorf("enqueue write task: %w", err)
	}
	return nil
}

// BuildRow flattens one record's selected field values into an ordered row:
// external id first, then one cell per field sorted by ascending field id.
// The header is written with the same ordering later, so columns line up
// positionally no matter which worker built which row.
func (p *Pipeline) BuildRow(ctx context.Context, task domain.BuildTask) ([]string, error) {
	dbc := dbctx.Context{Ctx: ctx}

	record, err := p.records.GetByID(dbc, task.RecordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("datarecord %s not found", task.RecordID)
	}

	fields, err := p.fields.GetByIDs(dbc, task.FieldIDs)
	if err != nil {
		return nil, err
	}
	fieldsByID := make(map[uuid.UUID]*domain.Datafield, len(fields))
	for _, f := range fields {
		fieldsByID[f.ID] = f
	}
	for _, id := range task.FieldIDs {
		if _, ok := fieldsByID[id]; !ok {
			return nil, apierr.InvalidField(fmt.Errorf("datafield %s not found", id))
		}
	}

	// One query per value family; text/number/date share a query shape,
	// choice fields join through the option-selection table.
	byFamily := map[domain.FieldType][]uuid.UUID{}
	for _, id := range task.FieldIDs {
		f := fieldsByID[id]
		family := f.FieldType
		if family.Choice() {
			family = domain.FieldTypeMultiChoice
		}
		byFamily[family] = append(byFamily[family], id)
	}

	cells := make(map[uuid.UUID]string, len(task.FieldIDs))

	if ids := byFamily[domain.FieldTypeText]; len(ids) > 0 {
		vals, err := p.records.TextValues(dbc, task.RecordID, ids)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if v.Value != nil {
				cells[v.DatafieldID] = *v.Value
			}
		}
	}

	if ids := byFamily[domain.FieldTypeInteger]; len(ids) > 0 {
		vals, err := p.records.IntegerValues(dbc, task.RecordID, ids)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if v.Value != nil {
				cells[v.DatafieldID] = strconv.FormatInt(*v.Value, 10)
			}
		}
	}

	if ids := byFamily[domain.FieldTypeDecimal]; len(ids) > 0 {
		vals, err := p.records.DecimalValues(dbc, task.RecordID, ids)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if v.Value != nil {
				cells[v.DatafieldID] = strconv.FormatFloat(*v.Value, 'f', -1, 64)
			}
		}
	}

	if ids := byFamily[domain.FieldTypeDate]; len(ids) > 0 {
		vals, err := p.records.DatetimeValues(dbc, task.RecordID, ids)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			cells[v.DatafieldID] = export.FormatDate(v.Value)
		}
	}

	if ids := byFamily[domain.FieldTypeMultiChoice]; len(ids) > 0 {
		selections, err := p.records.SelectedOptions(dbc, task.RecordID, ids)
		if err != nil {
			return nil, err
		}
		labels := map[uuid.UUID][]string{}
		for _, sel := range selections {
			labels[sel.DatafieldID] = append(labels[sel.DatafieldID], sel.OptionName)
		}
		for fieldID, names := range labels {
			if len(names) == 1 {
				cells[fieldID] = names[0]
				continue
			}
			// Initiation already validated this, but a task built from an
			// older job version could still arrive without the delimiter.
			if task.SecondaryDelimiter == "" {
				return nil, apierr.MissingSecondaryDelimiter(
					fmt.Errorf("field %s has %d selected options and no secondary delimiter", fieldID, len(names)),
				)
			}
			cells[fieldID] = strings.Join(names, task.SecondaryDelimiter)
		}
	}

	row := make([]string, 0, 1+len(task.FieldIDs))
	row = append(row, record.ExternalID)
	for _, id := range export.SortFieldIDs(task.FieldIDs) {
		row = append(row, cells[id])
	}
	return row, nil
}
