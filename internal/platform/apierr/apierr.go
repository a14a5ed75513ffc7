package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable per-call-site codes returned in HTTP error envelopes.
const (
	CodeInvalidField              = "invalid_field"
	CodeInvalidDelimiter          = "invalid_delimiter"
	CodeDuplicateJob              = "duplicate_job"
	CodeMissingSecondaryDelimiter = "missing_secondary_delimiter"
	CodeRecordListMissing         = "record_list_missing"
	CodeFileNotFound              = "file_not_found"
	CodeUnauthorized              = "unauthorized"
	CodeInternal                  = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func InvalidField(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidField, err)
}

func InvalidDelimiter(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidDelimiter, err)
}

func DuplicateJob(err error) *Error {
	return New(http.StatusConflict, CodeDuplicateJob, err)
}

func MissingSecondaryDelimiter(err error) *Error {
	return New(http.StatusBadRequest, CodeMissingSecondaryDelimiter, err)
}

func RecordListMissing(err error) *Error {
	return New(http.StatusBadRequest, CodeRecordListMissing, err)
}

func FileNotFound(err error) *Error {
	return New(http.StatusNotFound, CodeFileNotFound, err)
}

// HasCode reports whether err is (or wraps) an *Error with the given code.
func HasCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
