// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

import (
	"context"
)

// Result label values.
const (
	Hit      = "hit"
	Miss     = "miss"
	Reserved = "reserved"
	Stale    = "stale"
	Corrupt  = "corrupt"
	Error    = "error"
	Ok       = "ok"
	Conflict = "conflict"
)

var (
	Counters = map[string]counterOpts{
		"cache_lookups_total": {
			Help:   "Count of cache lookups by result.",
			Labels: []string{"result"},
		},
		"composite_reads_total": {
			Help:   "Count of composite artifact reads by result.",
			Labels: []string{"result"},
		},
		"composite_writes_total": {
			Help:   "Count of composite artifact writes by result.",
			Labels: []string{"result"},
		},
		"filemap_writes_total": {
			Help:   "Count of file map record writes by result.",
			Labels: []string{"result"},
		},
	}
	Histograms = map[string]histogramOpts{
		"filemap_op_latency_seconds": {
			Help:    "File map operation latency in seconds.",
			Labels:  []string{"operation"},
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
		},
		"composite_op_latency_seconds": {
			Help:    "Composite store operation latency in seconds.",
			Labels:  []string{"operation"},
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
		},
	}
)

// GetCacheLookupsTotalCounter returns a Counter to set metric cache_lookups_total (count of cache lookups by result).
func GetCacheLookupsTotalCounter(ctx context.Context, result string) Counter {
	return getCounter(ctx, "cache_lookups_total", map[string]string{"result": result})
}

// GetCompositeReadsTotalCounter returns a Counter to set metric composite_reads_total (count of composite artifact reads by result).
func GetCompositeReadsTotalCounter(ctx context.Context, result string) Counter {
	return getCounter(ctx, "composite_reads_total", map[string]string{"result": result})
}

// GetCompositeWritesTotalCounter returns a Counter to set metric composite_writes_total (count of composite artifact writes by result).
func GetCompositeWritesTotalCounter(ctx context.Context, result string) Counter {
	return getCounter(ctx, "composite_writes_total", map[string]string{"result": result})
}

// GetFilemapWritesTotalCounter returns a Counter to set metric filemap_writes_total (count of file map record writes by result).
func GetFilemapWritesTotalCounter(ctx context.Context, result string) Counter {
	return getCounter(ctx, "filemap_writes_total", map[string]string{"result": result})
}

// GetFilemapOpLatencySecondsHistogram returns a Histogram to set metric filemap_op_latency_seconds (file map operation latency in seconds).
func GetFilemapOpLatencySecondsHistogram(ctx context.Context, operation string) Histogram {
	return getHistogram(ctx, "filemap_op_latency_seconds", map[string]string{"operation": operation})
}

// GetCompositeOpLatencySecondsHistogram returns a Histogram to set metric composite_op_latency_seconds (composite store operation latency in seconds).
func GetCompositeOpLatencySecondsHistogram(ctx context.Context, operation string) Histogram {
	return getHistogram(ctx, "composite_op_latency_seconds", map[string]string{"operation": operation})
}
