// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tracer records allocate/acquire/send/drop stacks for leak diagnostics,
// per spec.md §2's "Drop / Lifecycle Tracer" component. It is disabled by
// default (nil logger, zero overhead) and enabled process-wide with
// EnableTracer.
type tracer struct {
	logger *zap.Logger
}

var activeTracer atomic.Pointer[tracer]

// EnableTracer turns on the debug leak tracer, logging allocate, acquire,
// send, and drop events for every buffer through logger. Pass nil to
// disable it again.
//
// The tracer is best-effort diagnostics, not a correctness mechanism: it
// never blocks an operation and never returns an error to the caller.
func EnableTracer(logger *zap.Logger) {
	if logger == nil {
		activeTracer.Store(nil)
		return
	}
	activeTracer.Store(&tracer{logger: logger})
}

func traceEvent(event string, regionID uuid.UUID, fields ...zap.Field) {
	t := activeTracer.Load()
	if t == nil {
		return
	}
	base := []zap.Field{
		zap.String("event", event),
		zap.String("region_id", regionID.String()),
		zap.Strings("stack", formatStackDigest(traceStackDigest(2))),
	}
	t.logger.Debug("membuf buffer lifecycle", append(base, fields...)...)
}

// traceStackDigest returns the top few program-counter addresses of the
// caller's stack as a compact diagnostic aid, avoiding the cost of a full
// runtime.Stack() capture on every event when the tracer is enabled. skip
// counts frames above traceStackDigest's own caller.
func traceStackDigest(skip int) []uintptr {
	pc := make([]uintptr, 8)
	n := runtime.Callers(skip+1, pc)
	return pc[:n]
}

// formatStackDigest renders a traceStackDigest result as file:line entries
// for the tracer's "stack" field.
func formatStackDigest(pc []uintptr) []string {
	if len(pc) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pc)
	out := make([]string, 0, len(pc))
	for {
		frame, more := frames.Next()
		out = append(out, fmt.Sprintf("%s:%d", frame.Function, frame.Line))
		if !more {
			break
		}
	}
	return out
}
