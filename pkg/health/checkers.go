package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags the process as unhealthy once the goroutine
// count exceeds threshold, catching leaks before they exhaust memory.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// HeapAllocCheck flags the process as unhealthy once the live heap exceeds
// maxBytes.
func HeapAllocCheck(maxBytes uint64) CheckFunc {
	return func(context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > maxBytes {
			return errors.Errorf("heap alloc %d bytes exceeds limit %d", ms.HeapAlloc, maxBytes)
		}
		return nil
	}
}

// PingCheck adapts a Ping-style dependency probe, bounding it with its own
// timeout in addition to the probe timeout configured at registration.
func PingCheck(timeout time.Duration, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return ping(ctx)
	}
}
