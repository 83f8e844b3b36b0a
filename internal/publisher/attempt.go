package publisher

import (
	"fmt"
	"time"

	"github.com/lakewright/product-publisher/internal/catalog"
	"github.com/lakewright/product-publisher/internal/contract"
)

// State is the lifecycle position of a publish attempt.
type State string

const (
	StateInit      State = "INIT"
	StateStaged    State = "STAGED"
	StateExecuted  State = "EXECUTED"
	StateMerged    State = "MERGED"
	StatePreserved State = "PRESERVED"
)

// Outcome is the terminal result of an attempt.
type Outcome string

const (
	OutcomeMerged    Outcome = "MERGED"
	OutcomePreserved Outcome = "PRESERVED"
)

// Attempt tracks one publish invocation. Attempts are transient: they
// live in process memory and logs only, never persisted beyond the
// optional history record.
type Attempt struct {
	ID            string
	Product       *contract.Product
	StagingBranch string
	State         State
	Run           *catalog.RunResult
	Outcome       Outcome
	StartedAt     time.Time
}

// RunFailureError reports a pipeline run that reached a non-success
// terminal status. It is recovered into a preserved attempt, never
// retried.
type RunFailureError struct {
	JobID  string
	Status catalog.RunStatus
}

func (e *RunFailureError) Error() string {
	return fmt.Sprintf("pipeline run %s finished with status %s", e.JobID, e.Status)
}
