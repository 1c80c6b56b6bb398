// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

type nopCounter struct{}

func (n *nopCounter) Inc() {}

func (n *nopCounter) Add(float64) {}

type nopHistogram struct{}

func (n *nopHistogram) Observe(float64) {}

type nopClient struct{}

// GetCounter returns a nopCounter which does nothing.
func (*nopClient) GetCounter(string, map[string]string) Counter {
	return &nopCounter{}
}

// GetHistogram returns a nopHistogram which does nothing.
func (*nopClient) GetHistogram(string, map[string]string) Histogram {
	return &nopHistogram{}
}
