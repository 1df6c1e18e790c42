package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/common"
)

// withTimeout runs fn under a deadline and reports an expired deadline as
// common.ErrTimeout, whatever error the backend chose to return.
func withTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(tctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	}
	return err
}
