package render

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"pagepress/internal/pkg/errors"
)

// State is a render job lifecycle state.
type State string

const (
	StateValidating State = "validating"
	StateRendering  State = "rendering"
	StateStreaming  State = "streaming"
	StateRecording  State = "recording"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var nextState = map[State]State{
	StateValidating: StateRendering,
	StateRendering:  StateStreaming,
	StateStreaming:  StateRecording,
	StateRecording:  StateDone,
}

// Job is the transient record of one render request.
type Job struct {
	ID          string
	PrincipalID string
	TargetURL   string
	StartedAt   time.Time
	State       State
	// Reason and FailedIn are set once the job has failed.
	Reason   errors.Code
	FailedIn State
}

func NewJob(principalID string, startedAt time.Time) *Job {
	return &Job{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		StartedAt:   startedAt,
		State:       StateValidating,
	}
}

// Advance moves the job to the state that follows its current one.
// to must be that state.
func (j *Job) Advance(to State) error {
	want, ok := nextState[j.State]
	if !ok || want != to {
		return fmt.Errorf("illegal render job transition %s -> %s", j.State, to)
	}
	j.State = to
	return nil
}

// Fail moves a non-terminal job to StateFailed with reason.
func (j *Job) Fail(reason errors.Code) error {
	if j.Terminal() {
		return fmt.Errorf("illegal render job transition %s -> %s", j.State, StateFailed)
	}
	j.FailedIn = j.State
	j.State = StateFailed
	j.Reason = reason
	return nil
}

func (j *Job) Terminal() bool {
	return j.State == StateDone || j.State == StateFailed
}
