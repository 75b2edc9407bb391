// Package pool runs keyed tasks on a bounded task group.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers caps concurrent tasks when no limit is given
const DefaultWorkers = 10

// Collect runs fn once per distinct key with at most limit tasks in flight and
// returns the results keyed by key after every task has finished. Each task owns
// one result slot, so nothing is shared until the join.
func Collect[V any](ctx context.Context, limit int, keys []string, fn func(ctx context.Context, key string) V) map[string]V {
	unique := dedupe(keys)
	if len(unique) == 0 {
		return map[string]V{}
	}
	if limit <= 0 {
		limit = DefaultWorkers
	}

	slots := make([]V, len(unique))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, key := range unique {
		g.Go(func() error {
			slots[i] = fn(ctx, key)
			return nil
		})
	}
	_ = g.Wait() // tasks never fail; failures are part of V

	results := make(map[string]V, len(unique))
	for i, key := range unique {
		results[key] = slots[i]
	}
	return results
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
