package attach

import (
	"errors"
	"fmt"
)

var (
	// ErrPollTimeout is returned when a cluster is not ready within the
	// poll deadline or attempt budget.
	ErrPollTimeout = errors.New("timed out waiting for cluster")
	// ErrNoMasterInstance is returned when no master instance with a
	// private address could be found.
	ErrNoMasterInstance = errors.New("no master instance with a private address")
)

// UsageError reports an invalid combination of options. It is raised before
// any provider call.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// ClusterFailedError is returned when a cluster reaches a terminal state
// while being polled or attached to.
type ClusterFailedError struct {
	ClusterID string
	State     string
	Code      string
	Reason    string
}

func (e *ClusterFailedError) Error() string {
	msg := fmt.Sprintf("cluster %s is %s", e.ClusterID, e.State)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
