package engine

import "sync"

// Summary aggregates one cycle's outcomes. The run-once mode's exit
// status reflects Failed; the continuous mode logs it and moves on.
type Summary struct {
	mu sync.Mutex

	Processed int
	Edited    int
	Unchanged int
	Skipped   int
	Failed    int
	Failures  map[string]error
}

func newSummary() *Summary {
	return &Summary{Failures: make(map[string]error)}
}

func (s *Summary) record(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Processed++
	switch job.State {
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
		s.Failures[job.Page] = job.Err
	case StateDone:
		if job.Edited {
			s.Edited++
		} else {
			s.Unchanged++
		}
	}
}

// OK reports whether the cycle completed without job failures.
func (s *Summary) OK() bool {
	return s.Failed == 0
}
