package merge

import (
	"context"
	"sync"
)

// Job is a merge running in the background.
type Job struct {
	output string
	cancel context.CancelFunc

	resultCh chan Result
	finished chan struct{}
	once     sync.Once
	result   Result
}

func newJob(output string, cancel context.CancelFunc) *Job {
	return &Job{
		output:   output,
		cancel:   cancel,
		resultCh: make(chan Result, 1),
		finished: make(chan struct{}),
	}
}

// settledJob returns a job that already has its result.
func settledJob(result Result) *Job {
	j := newJob("", func() {})
	j.settle(result)
	return j
}

// settle stores the result. Only the first call has any effect.
func (j *Job) settle(result Result) {
	j.once.Do(func() {
		j.result = result
		j.resultCh <- result
		close(j.finished)
	})
}

// Done returns the completion channel. It delivers exactly one Result.
func (j *Job) Done() <-chan Result {
	return j.resultCh
}

// Wait blocks until the job settles and returns its result.
// It can be called any number of times, alongside or instead of Done.
func (j *Job) Wait() Result {
	<-j.finished
	return j.result
}

// Cancel asks the engine to stop. The job still settles, as cancelled
// unless the engine had already finished.
func (j *Job) Cancel() {
	j.cancel()
}

// Output returns the planned output path. Empty when the job was rejected up front.
func (j *Job) Output() string {
	return j.output
}
