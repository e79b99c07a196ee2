package domain

import "time"

// IngestStats holds statistics about one ingestion batch.
type IngestStats struct {
	SourceID   int64
	Received   int
	New        int
	Duplicates int
}

// DispatchResult describes one dispatch cycle. Sent reports whether at
// least one subscriber received the digest.
type DispatchResult struct {
	Sent      bool
	Count     int
	Delivered int
	Failed    int
	Watermark int64
}

// DeliveryOutcome is the result of delivering a digest to one subscriber.
type DeliveryOutcome struct {
	Recipient Subscriber
	Err       error
}

func (o DeliveryOutcome) OK() bool {
	return o.Err == nil
}

// ShouldAdvance reports whether the watermark may move after a fan-out:
// only when there was at least one delivery and none failed.
func ShouldAdvance(outcomes []DeliveryOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.OK() {
			return false
		}
	}
	return true
}

// RunStats summarizes a full pipeline run for one source.
type RunStats struct {
	RunID    string
	SourceID int64
	Ingest   *IngestStats
	Dispatch *DispatchResult
	Duration time.Duration
}
