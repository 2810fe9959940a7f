// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cluster

import (
	"context"
	"errors"
	"testing"
)

func TestSequentialRunsInOrder(t *testing.T) {
	var order []string
	r := &Sequential{Run: func(j Job) error {
		order = append(order, j.Name)
		return nil
	}}
	r.Submit(Job{Name: "a"})
	r.Submit(Job{Name: "b"})
	r.Submit(Job{Name: "c"})

	results := r.Finish(context.Background())
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("job %s: unexpected error %v", res.Name, res.Err)
		}
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if order[i] != w {
			t.Errorf("order[%d] = %s, want %s", i, order[i], w)
		}
	}
}

func TestSequentialWrapsFailure(t *testing.T) {
	r := &Sequential{Run: func(j Job) error {
		if j.Name == "bad" {
			return errors.New("boom")
		}
		return nil
	}}
	r.Submit(Job{Name: "good"})
	r.Submit(Job{Name: "bad"})

	results := r.Finish(context.Background())
	if results[0].Err != nil {
		t.Errorf("job good: unexpected error %v", results[0].Err)
	}
	var cf *ClusterFailure
	if !errors.As(results[1].Err, &cf) {
		t.Fatalf("job bad: expected *ClusterFailure, got %v", results[1].Err)
	}
	if cf.Job != "bad" {
		t.Errorf("ClusterFailure.Job = %q, want %q", cf.Job, "bad")
	}
}

func TestSequentialEmpty(t *testing.T) {
	r := &Sequential{}
	if got := r.Finish(context.Background()); len(got) != 0 {
		t.Errorf("Finish on empty queue returned %d results", len(got))
	}
}
