package constants

// ReportStatus is the canonical status for rows in lab_reports.
type ReportStatus string

// Stable values (store these exact strings in DB).
const (
	ReportStatusQueued    ReportStatus = "QUEUED"
	ReportStatusProcessed ReportStatus = "PROCESSED" // parsed without human review
	ReportStatusCorrected ReportStatus = "CORRECTED" // reviewer submitted a snapshot
	ReportStatusFailed    ReportStatus = "FAILED"
)

// BatchStatus summarizes a batch run once every job has been handled.
type BatchStatus string

const (
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusPartial   BatchStatus = "partial"
	BatchStatusFailed    BatchStatus = "failed"
)

// ResolveBatchStatus derives the final batch status from per-report counts.
func ResolveBatchStatus(total, processed, failed int) BatchStatus {
	switch {
	case processed+failed < total:
		return BatchStatusPartial
	case failed > 0 && processed == 0:
		return BatchStatusFailed
	default:
		return BatchStatusCompleted
	}
}
