package export

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opendatarepo/odr-backend/internal/domain"
)

// SentinelDate is the max-date convention the wider system uses to mean
// "unset"; it renders as an empty cell.
var SentinelDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"

// ExternalIDHeader is the fixed label of the leading external-id column.
const ExternalIDHeader = "_external_id"

func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	if t.Year() == SentinelDate.Year() && t.Month() == SentinelDate.Month() && t.Day() == SentinelDate.Day() {
		return ""
	}
	return t.Format(dateLayout)
}

// SortFieldIDs orders field ids ascending by byte value. Every row and the
// header are built with the same ordering, so columns line up positionally
// no matter which worker built them or how the caller supplied the ids.
func SortFieldIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// WriteRow appends one delimited, quote-on-demand row. encoding/csv doubles
// embedded quotes and terminates the record with a newline, which is the
// byte format the download contract promises.
func WriteRow(w io.Writer, delimiter string, row []string) error {
	runes := []rune(delimiter)
	if len(runes) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}
	cw := csv.NewWriter(w)
	cw.Comma = runes[0]
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// RandomKey returns a short random hex string, generated fresh per row-writer
// invocation.
func RandomKey() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is broken;
		// fall back to a time-derived key rather than aborting the write.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// FinalizeTicketKey hashes the pending random keys, in ascending claim-id
// order, into the finalize-ticket claim key. Every worker racing past the
// total computes the same key, so the conditional insert admits one winner.
func FinalizeTicketKey(refs []domain.ClaimRef) string {
	h := md5.New()
	for _, ref := range refs {
		_, _ = io.WriteString(h, ref.RandomKey)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TempDir is the per-job directory holding one temp file per write claim.
func TempDir(exportDir string, jobID uuid.UUID) string {
	return filepath.Join(exportDir, "tmp", "job_"+jobID.String())
}

func TempFilePath(exportDir string, jobID uuid.UUID, randomKey string) string {
	return filepath.Join(TempDir(exportDir, jobID), randomKey+".csv")
}

func FinalFilename(ownerUserID, jobID uuid.UUID) string {
	return fmt.Sprintf("export_%s_%s.csv", ownerUserID, jobID)
}

func FinalFilePath(exportDir, finalFilename string) string {
	return filepath.Join(exportDir, finalFilename)
}
