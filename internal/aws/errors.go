package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

// ProviderError wraps a failed EMR API call.
type ProviderError struct {
	Op        string
	ClusterID string
	Err       error
}

func (e *ProviderError) Error() string {
	if e.ClusterID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ClusterID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsPermanent reports whether retrying err cannot succeed: the request was
// rejected as invalid (for example an unknown cluster id) or the caller
// gave up.
func IsPermanent(err error) bool {
	var invalid *types.InvalidRequestException
	if errors.As(err, &invalid) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
