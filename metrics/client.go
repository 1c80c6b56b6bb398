// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics declares the metrics emitted by the cache and
// provides access to them through a Client attached to a context.
// Metrics are no-ops on contexts without a client.
package metrics

import (
	"context"
	"fmt"
)

// Counter wraps prometheus.Counter. Counters can only increase in value.
type Counter interface {
	// Inc adds one to the counter
	Inc()
	// Add adds the given value to the counter. It panics if the value is <
	// 0.
	Add(float64)
}

// Histogram wraps prometheus.Histogram. Histograms record observations of events and discretize
// them into preconfigured buckets.
type Histogram interface {
	// Observe adds a sample observation to the histogram
	Observe(float64)
}

type labelSet []string

type counterOpts struct {
	Labels labelSet
	Help   string
}

type histogramOpts struct {
	Labels  labelSet
	Help    string
	Buckets []float64
}

// mustCompleteLabels confirms that all of the labels in the given labelSet are satisfied by labels.
func mustCompleteLabels(labelSet labelSet, labels map[string]string) bool {
	if len(labels) != len(labelSet) {
		return false
	}
	for _, label := range labelSet {
		if _, ok := labels[label]; !ok {
			return false
		}
	}
	return true
}

// getCounter inspects the given context and returns the requested Counter if metrics are enabled on the context.
func getCounter(ctx context.Context, name string, labels map[string]string) Counter {
	if !On(ctx) {
		return &nopCounter{}
	}
	if opts, ok := Counters[name]; !ok {
		panic(fmt.Sprintf("attempted to get undeclared counter %s", name))
	} else if !mustCompleteLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("attempted to set counter %s with invalid labels, expected %v but got %v",
			name, opts.Labels, labels))
	}
	return metricsClient(ctx).GetCounter(name, labels)
}

// getHistogram inspects the given context and returns the requested Histogram if metrics are enabled on the context.
func getHistogram(ctx context.Context, name string, labels map[string]string) Histogram {
	if !On(ctx) {
		return &nopHistogram{}
	}
	if opts, ok := Histograms[name]; !ok {
		panic(fmt.Sprintf("attempted to get undeclared histogram %s", name))
	} else if !mustCompleteLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("attempted to set histogram %s with invalid labels, expected %v but got %v",
			name, opts.Labels, labels))
	}
	return metricsClient(ctx).GetHistogram(name, labels)
}

// Client is a sink for metrics.
type Client interface {
	GetCounter(name string, labels map[string]string) Counter
	GetHistogram(name string, labels map[string]string) Histogram
}

// NopClient is default metrics client that does nothing.
var NopClient Client = &nopClient{}

type contextKey int

const clientKey contextKey = iota

// WithClient returns a context that emits metrics to the
// provided Client.
func WithClient(ctx context.Context, client Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, clientKey, client)
}

// On returns true if there is a current Client associated with the
// provided context.
func On(ctx context.Context) bool {
	_, ok := ctx.Value(clientKey).(Client)
	return ok
}

func metricsClient(ctx context.Context) Client {
	return ctx.Value(clientKey).(Client)
}
