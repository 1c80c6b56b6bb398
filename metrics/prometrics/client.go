// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package prometrics implements a metrics.Client backed by a
// Prometheus registry.
package prometrics

import (
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/log"
	"github.com/grailbio/bundlecache/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is prepended to metric names unless another
// namespace is given.
const DefaultNamespace = "bundlecache"

type client struct {
	namespace  string
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewClient returns a metrics client whose collectors are registered
// with reg. An empty namespace uses DefaultNamespace.
func NewClient(reg prometheus.Registerer, namespace string) (metrics.Client, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &client{
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	if err := r.initCollectors(reg); err != nil {
		return nil, err
	}
	return r, nil
}

// initCollectors inspects the counters and histograms declared by package
// metrics and registers their backing stores with reg.
func (r *client) initCollectors(reg prometheus.Registerer) error {
	for name, opts := range metrics.Counters {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      name,
			Help:      opts.Help,
		}, opts.Labels)
		r.counters[name] = cv
		if err := reg.Register(cv); err != nil {
			return errors.E("prometrics.register", name, err)
		}
	}
	for name, opts := range metrics.Histograms {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      name,
			Buckets:   opts.Buckets,
			Help:      opts.Help,
		}, opts.Labels)
		r.histograms[name] = hv
		if err := reg.Register(hv); err != nil {
			return errors.E("prometrics.register", name, err)
		}
	}
	return nil
}

func (r *client) GetCounter(name string, labels map[string]string) metrics.Counter {
	counter, err := r.counters[name].GetMetricWith(labels)
	if err != nil {
		log.Fatalf("prometrics: counter %s: %v", name, err)
	}
	return counter
}

func (r *client) GetHistogram(name string, labels map[string]string) metrics.Histogram {
	histogram, err := r.histograms[name].GetMetricWith(labels)
	if err != nil {
		log.Fatalf("prometrics: histogram %s: %v", name, err)
	}
	return histogram
}
