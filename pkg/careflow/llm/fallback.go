package llm

import (
	"context"

	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
)

// InferWithFallback calls svc with primary and, if that fails with a
// retryable or content error, once more with fallback. retry controls the
// attempt count and backoff; cferrors.FallbackRetry gives exactly one
// retry. The returned error is the last failure.
func InferWithFallback(ctx context.Context, svc Service, primary, fallback Request, retry cferrors.RetryConfig) (*Result, error) {
	res := cferrors.WithRetryContext(ctx, retry, func(ctx context.Context, attempt int) (*Result, error) {
		req := primary
		if attempt > 1 {
			req = fallback
		}
		return svc.Infer(ctx, req)
	})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value, nil
}
