// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command membufbench drives membuf's pooled allocator under synthetic
// concurrent load and prints the resulting arena/thread-cache Prometheus
// metrics, for manually sanity-checking allocator behavior outside of the
// test suite.
package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	membuf "code.hybscloud.com/membuf"
)

// cmdFlags holds the CLI's flag values.
type cmdFlags struct {
	NumArenas   int
	PageSize    int
	MaxOrder    int
	AllocSize   int
	Goroutines  int
	Duration    time.Duration
	UseSessions bool
}

var cmd cmdFlags

var rootCmd = &cobra.Command{
	Use:   "membufbench",
	Short: "Drive membuf's pooled allocator under load and report arena stats",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(cmd)
	},
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&cmd.NumArenas, "arenas", 4, "number of arenas")
	f.IntVar(&cmd.PageSize, "page-size", 8192, "arena page size in bytes")
	f.IntVar(&cmd.MaxOrder, "max-order", 9, "arena max buddy order (chunk = page-size << max-order)")
	f.IntVar(&cmd.AllocSize, "alloc-size", 512, "size in bytes of each allocation")
	f.IntVar(&cmd.Goroutines, "goroutines", 8, "number of concurrent workers")
	f.DurationVar(&cmd.Duration, "duration", 2*time.Second, "how long to run the workload")
	f.BoolVar(&cmd.UseSessions, "sessions", false, "allocate through an explicit per-worker Session instead of the bare allocator")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(c cmdFlags) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	allocator, err := membuf.NewPooledHeapAllocator(registry,
		membuf.WithNumArenas(c.NumArenas),
		membuf.WithPageSize(c.PageSize),
		membuf.WithMaxOrder(c.MaxOrder),
	)
	if err != nil {
		return fmt.Errorf("new pooled allocator: %w", err)
	}
	defer allocator.Close()

	logger.Info("starting workload",
		zap.Int("arenas", c.NumArenas),
		zap.Int("page_size", c.PageSize),
		zap.Int("alloc_size", c.AllocSize),
		zap.Int("goroutines", c.Goroutines),
		zap.Duration("duration", c.Duration),
		zap.Bool("sessions", c.UseSessions),
	)

	var allocs, errs uint64
	var mu sync.Mutex
	deadline := time.Now().Add(c.Duration)

	var wg sync.WaitGroup
	wg.Add(c.Goroutines)
	for i := 0; i < c.Goroutines; i++ {
		go func() {
			defer wg.Done()
			n, errN := runWorker(allocator, c.AllocSize, c.UseSessions, deadline)
			mu.Lock()
			allocs += n
			errs += errN
			mu.Unlock()
		}()
	}
	wg.Wait()

	logger.Info("workload complete", zap.Uint64("allocations", allocs), zap.Uint64("errors", errs))

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}

type sessionAllocator interface {
	AcquireLease() (*membuf.Session, error)
}

func runWorker(allocator membuf.Allocator, size int, useSessions bool, deadline time.Time) (allocs, errs uint64) {
	if !useSessions {
		for time.Now().Before(deadline) {
			buf, err := allocator.Allocate(size)
			if err != nil {
				errs++
				continue
			}
			allocs++
			_ = buf.Close()
		}
		return allocs, errs
	}

	sa, ok := allocator.(sessionAllocator)
	if !ok {
		errs++
		return
	}
	session, err := sa.AcquireLease()
	if err != nil {
		errs++
		return
	}
	defer session.Close()

	for time.Now().Before(deadline) {
		buf, err := session.Allocate(size)
		if err != nil {
			errs++
			continue
		}
		allocs++
		if err := session.FreeLocal(buf); err != nil {
			errs++
		}
	}
	return allocs, errs
}
