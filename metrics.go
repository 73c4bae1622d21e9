package ecsync

import "time"

// Metrics captures relay telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time spent on a cycle that had work.
	ObserveCycleDuration(duration time.Duration)
	// AddPublished increments the number of payloads accepted by the queue.
	AddPublished(kind Kind, count int)
	// AddDeleted increments the number of outbox rows removed after publishing.
	AddDeleted(kind Kind, count int)
	// AddPipelineErrors increments the number of failed kind pipelines.
	AddPipelineErrors(kind Kind, count int)
	// SetPending updates the pending record gauge of a kind.
	SetPending(kind Kind, count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(time.Duration) {}

// AddPublished implements Metrics.
func (NopMetrics) AddPublished(Kind, int) {}

// AddDeleted implements Metrics.
func (NopMetrics) AddDeleted(Kind, int) {}

// AddPipelineErrors implements Metrics.
func (NopMetrics) AddPipelineErrors(Kind, int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(Kind, int) {}
