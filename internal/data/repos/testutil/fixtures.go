package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/opendatarepo/odr-backend/internal/domain"
)

func SeedDatatype(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Datatype {
	tb.Helper()
	dt := &types.Datatype{
		ID:   uuid.New(),
		Name: name,
	}
	if err := tx.WithContext(ctx).Create(dt).Error; err != nil {
		tb.Fatalf("seed datatype: %v", err)
	}
	return dt
}

func SeedDatafield(tb testing.TB, ctx context.Context, tx *gorm.DB, datatypeID uuid.UUID, name string, fieldType types.FieldType) *types.Datafield {
	tb.Helper()
	df := &types.Datafield{
		ID:         uuid.New(),
		DatatypeID: datatypeID,
		FieldName:  name,
		FieldType:  fieldType,
	}
	if err := tx.WithContext(ctx).Create(df).Error; err != nil {
		tb.Fatalf("seed datafield: %v", err)
	}
	return df
}

func SeedFieldOption(tb testing.TB, ctx context.Context, tx *gorm.DB, datafieldID uuid.UUID, name string, order int) *types.FieldOption {
	tb.Helper()
	fo := &types.FieldOption{
		ID:           uuid.New(),
		DatafieldID:  datafieldID,
		OptionName:   name,
		DisplayOrder: order,
	}
	if err := tx.WithContext(ctx).Create(fo).Error; err != nil {
		tb.Fatalf("seed field option: %v", err)
	}
	return fo
}

func SeedDatarecord(tb testing.TB, ctx context.Context, tx *gorm.DB, datatypeID uuid.UUID, externalID string) *types.Datarecord {
	tb.Helper()
	dr := &types.Datarecord{
		ID:         uuid.New(),
		DatatypeID: datatypeID,
		ExternalID: externalID,
	}
	if err := tx.WithContext(ctx).Create(dr).Error; err != nil {
		tb.Fatalf("seed datarecord: %v", err)
	}
	return dr
}

func SeedTextValue(tb testing.TB, ctx context.Context, tx *gorm.DB, recordID, fieldID uuid.UUID, value string) *types.TextValue {
	tb.Helper()
	v := &types.TextValue{
		ID:           uuid.New(),
		DatarecordID: recordID,
		DatafieldID:  fieldID,
		Value:        &value,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed text value: %v", err)
	}
	return v
}

func SeedIntegerValue(tb testing.TB, ctx context.Context, tx *gorm.DB, recordID, fieldID uuid.UUID, value int64) *types.IntegerValue {
	tb.Helper()
	v := &types.IntegerValue{
		ID:           uuid.New(),
		DatarecordID: recordID,
		DatafieldID:  fieldID,
		Value:        &value,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed integer value: %v", err)
	}
	return v
}

func SeedDatetimeValue(tb testing.TB, ctx context.Context, tx *gorm.DB, recordID, fieldID uuid.UUID, value time.Time) *types.DatetimeValue {
	tb.Helper()
	v := &types.DatetimeValue{
		ID:           uuid.New(),
		DatarecordID: recordID,
		DatafieldID:  fieldID,
		Value:        &value,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed datetime value: %v", err)
	}
	return v
}

func SeedOptionSelection(tb testing.TB, ctx context.Context, tx *gorm.DB, recordID, fieldID, optionID uuid.UUID) *types.OptionSelection {
	tb.Helper()
	s := &types.OptionSelection{
		ID:           uuid.New(),
		DatarecordID: recordID,
		DatafieldID:  fieldID,
		OptionID:     optionID,
		Selected:     true,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed option selection: %v", err)
	}
	return s
}

func SeedExportJob(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID, datatypeID uuid.UUID, total int64) *types.ExportJob {
	tb.Helper()
	j := &types.ExportJob{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     types.JobTypeCSVExport,
		DatatypeID:  datatypeID,
		Total:       total,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed export job: %v", err)
	}
	return j
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
