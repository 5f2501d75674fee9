package queue

import "errors"

// ErrVersionConflict is returned when a persist observes a version other than
// the one the caller read. The caller lost the race; re-read and retry the
// claim, do not treat it as a job failure.
var ErrVersionConflict = errors.New("job version conflict")

// ErrDuplicateJob is returned when inserting a job whose id already exists.
var ErrDuplicateJob = errors.New("job already exists")

// ErrNotFound is returned when a job id has no record.
var ErrNotFound = errors.New("job not found")
