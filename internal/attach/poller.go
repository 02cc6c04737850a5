package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/beamline/emrattach/internal/aws"
)

const (
	DefaultPollInterval    = 15 * time.Second
	DefaultPollTimeout     = 60 * time.Minute
	DefaultRetryInitial    = time.Second
	DefaultRetryMaxElapsed = 2 * time.Minute
)

// Poller waits for clusters to become ready and looks up their master node.
type Poller struct {
	Cluster aws.ClusterAPI

	// Interval is the pause between state checks.
	Interval time.Duration
	// Timeout bounds the whole wait. Zero means DefaultPollTimeout.
	Timeout time.Duration
	// MaxAttempts bounds the number of state checks. Zero is unbounded.
	MaxAttempts int

	// RetryInitial and RetryMaxElapsed shape the backoff used for transient
	// describe and list failures.
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration

	// OnState, when set, is called with every state read by WaitReady.
	OnState func(attempt int, status aws.ClusterStatus)

	Logger *slog.Logger
}

// IsReady reports whether a cluster in state s accepts sessions. RUNNING
// means steps are still executing and is not ready.
func IsReady(s types.ClusterState) bool {
	return s == types.ClusterStateWaiting
}

// IsTerminal reports whether a cluster in state s can never become ready.
func IsTerminal(s types.ClusterState) bool {
	switch s {
	case types.ClusterStateTerminating, types.ClusterStateTerminated, types.ClusterStateTerminatedWithErrors:
		return true
	}
	return false
}

// WaitReady polls the cluster state until it is ready. It returns the
// number of state checks made.
func (p *Poller) WaitReady(ctx context.Context, clusterID string) (int, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := p.logger().With("cluster_id", clusterID)
	attempts := 0
	for {
		attempts++
		status, err := p.State(pollCtx, clusterID)
		if err != nil {
			return attempts, p.stopped(ctx, err, clusterID, timeout)
		}
		logger.Info("cluster state", "state", status.State, "attempt", attempts)
		if p.OnState != nil {
			p.OnState(attempts, *status)
		}

		if IsReady(status.State) {
			return attempts, nil
		}
		if IsTerminal(status.State) {
			return attempts, failed(clusterID, status)
		}
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return attempts, fmt.Errorf("%w: cluster %s still %s after %d checks", ErrPollTimeout, clusterID, status.State, attempts)
		}

		timer := time.NewTimer(interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return attempts, p.stopped(ctx, pollCtx.Err(), clusterID, timeout)
		case <-timer.C:
		}
	}
}

// State reads the cluster state, retrying transient failures.
func (p *Poller) State(ctx context.Context, clusterID string) (*aws.ClusterStatus, error) {
	var status *aws.ClusterStatus
	operation := func() error {
		s, err := p.Cluster.ClusterState(ctx, clusterID)
		if err != nil {
			if aws.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			p.logger().Warn("describing cluster failed, retrying", "cluster_id", clusterID, "error", err)
			return err
		}
		status = s
		return nil
	}
	if err := p.retry(ctx, operation); err != nil {
		return nil, err
	}
	return status, nil
}

// MasterAddress returns the private IP of the cluster's master node. It
// retries while the instance list is empty or has no address yet.
func (p *Poller) MasterAddress(ctx context.Context, clusterID string) (string, error) {
	var addr string
	operation := func() error {
		instances, err := p.Cluster.ListInstances(ctx, clusterID, types.InstanceGroupTypeMaster)
		if err != nil {
			if aws.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		for _, inst := range instances {
			if inst.PrivateIP != "" {
				addr = inst.PrivateIP
				return nil
			}
		}
		p.logger().Debug("master instance not listed yet", "cluster_id", clusterID, "instances", len(instances))
		return ErrNoMasterInstance
	}

	if err := p.retry(ctx, operation); err != nil {
		if errors.Is(err, ErrNoMasterInstance) {
			return "", fmt.Errorf("cluster %s: %w", clusterID, err)
		}
		return "", err
	}
	return addr, nil
}

func (p *Poller) retry(ctx context.Context, operation func() error) error {
	initial := p.RetryInitial
	if initial <= 0 {
		initial = DefaultRetryInitial
	}
	maxElapsed := p.RetryMaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = DefaultRetryMaxElapsed
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = initial
	exponentialBackoff.MaxElapsedTime = maxElapsed

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// stopped tells caller cancellation apart from the poll deadline.
func (p *Poller) stopped(parent context.Context, err error, clusterID string, timeout time.Duration) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: cluster %s not ready after %s", ErrPollTimeout, clusterID, timeout)
	}
	return err
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func failed(clusterID string, status *aws.ClusterStatus) *ClusterFailedError {
	return &ClusterFailedError{
		ClusterID: clusterID,
		State:     string(status.State),
		Code:      status.Code,
		Reason:    status.Reason,
	}
}
