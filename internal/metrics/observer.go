package metrics

import "time"

// SchedulerObserver receives scheduling and execution signals. The prometheus
// implementation is the production wiring; tests pass a nop.
type SchedulerObserver interface {
	IncRunning()
	DecRunning()
	RecordClaim()
	RecordDropped()
	RecordRetry()
	RecordExecution(taskType, status string, duration time.Duration)
}

type nopObserver struct{}

func NewNopObserver() SchedulerObserver { return nopObserver{} }

func (nopObserver) IncRunning()                                {}
func (nopObserver) DecRunning()                                {}
func (nopObserver) RecordClaim()                               {}
func (nopObserver) RecordDropped()                             {}
func (nopObserver) RecordRetry()                               {}
func (nopObserver) RecordExecution(string, string, time.Duration) {}
