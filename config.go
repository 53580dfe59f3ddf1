// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"runtime"
	"time"
)

// Options configures a pooled allocator (spec.md §6). Construct with
// DefaultOptions and override via the With* functional options, matching
// the teacher's enumerated-struct-over-environment-strings convention.
type Options struct {
	NumArenas                 int
	PageSize                  int
	MaxOrder                  int
	SmallCacheSize            int
	NormalCacheSize           int
	MaxCachedBufferCapacity   int
	CacheTrimInterval         int
	CacheTrimIntervalMillis   int
	DirectMemoryCacheAlignment int
	UseCacheForAllThreads     bool
}

// Option mutates an Options value at construction time.
type Option func(*Options)

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		NumArenas:               defaultNumArenas(),
		PageSize:                8192,
		MaxOrder:                9,
		SmallCacheSize:          256,
		NormalCacheSize:         64,
		MaxCachedBufferCapacity: 32 * 1024,
		CacheTrimInterval:       8192,
		UseCacheForAllThreads:   false,
	}
}

func defaultNumArenas() int {
	n := 2 * runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// NewOptions applies opts over DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithNumArenas(n int) Option { return func(o *Options) { o.NumArenas = n } }
func WithPageSize(n int) Option  { return func(o *Options) { o.PageSize = n } }
func WithMaxOrder(n int) Option  { return func(o *Options) { o.MaxOrder = n } }
func WithSmallCacheSize(n int) Option  { return func(o *Options) { o.SmallCacheSize = n } }
func WithNormalCacheSize(n int) Option { return func(o *Options) { o.NormalCacheSize = n } }
func WithMaxCachedBufferCapacity(n int) Option {
	return func(o *Options) { o.MaxCachedBufferCapacity = n }
}
func WithCacheTrimInterval(n int) Option { return func(o *Options) { o.CacheTrimInterval = n } }
func WithCacheTrimIntervalMillis(d time.Duration) Option {
	return func(o *Options) { o.CacheTrimIntervalMillis = int(d.Milliseconds()) }
}
func WithDirectMemoryCacheAlignment(n int) Option {
	return func(o *Options) { o.DirectMemoryCacheAlignment = n }
}
func WithUseCacheForAllThreads(b bool) Option {
	return func(o *Options) { o.UseCacheForAllThreads = b }
}

// ChunkSize returns PageSize << MaxOrder, the size of one arena chunk.
func (o Options) ChunkSize() int { return o.PageSize << o.MaxOrder }

// Validate rejects configurations the pooled allocator cannot honor.
func (o Options) Validate() error {
	if o.NumArenas < 1 {
		return &UnsupportedError{Feature: "num_arenas must be >= 1"}
	}
	if o.PageSize < 4096 || o.PageSize&(o.PageSize-1) != 0 {
		return &UnsupportedError{Feature: "page_size must be a power of two >= 4096"}
	}
	if o.MaxOrder < 0 || o.MaxOrder > 14 {
		return &UnsupportedError{Feature: "max_order must be in [0,14]"}
	}
	if o.ChunkSize() > 1<<30 {
		return &UnsupportedError{Feature: "chunk size (page_size << max_order) must be <= 2^30"}
	}
	if o.DirectMemoryCacheAlignment != 0 {
		a := o.DirectMemoryCacheAlignment
		if a < 0 || a&(a-1) != 0 {
			return &UnsupportedError{Feature: "direct_memory_cache_alignment must be a power of two or 0"}
		}
	}
	return nil
}
