// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"

	"golang.org/x/time/rate"
)

// maxBurstSize caps how many bytes a single throttled write can release
// into the limiter's burst in one call.
const maxBurstSize = 256 * 1024

// rateGate meters byte counts one call at a time, for callers (like
// upload's frame-by-frame send loop) that already own their own I/O and
// just need to pace it rather than have writes wrapped.
type rateGate struct {
	limiter *rate.Limiter
}

func newRateGate(bytesPerSec int64) *rateGate {
	if bytesPerSec <= 0 {
		return &rateGate{}
	}
	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return &rateGate{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

func (g *rateGate) wait(ctx context.Context, n int) error {
	if g.limiter == nil {
		return nil
	}
	burst := g.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := g.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
