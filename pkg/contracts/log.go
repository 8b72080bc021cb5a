package contracts

import "time"

// LogEntry is a single appended line in a Job's log, written by the
// print shim or by traceback framing on exception.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	Text      string    `json:"text"`
}
