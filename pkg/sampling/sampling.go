// Package sampling implements deterministic client sampling. The sampler is
// a pure function of (pool, k, seed, round): no process-global random state
// is involved, so the same inputs always produce the same sample.
package sampling

import (
	"math/rand/v2"
	"slices"
)

// Sample picks k clients from the pool. The pool is sorted before shuffling,
// so sampling is invariant to the caller's ordering. If k is zero, negative,
// or at least the pool size, the full sorted pool is returned.
func Sample(pool []string, k int, seed, round uint64) []string {
	clients := slices.Clone(pool)
	slices.Sort(clients)

	if k <= 0 || k >= len(clients) {
		return clients
	}

	rng := rand.New(rand.NewPCG(seed, round))
	rng.Shuffle(len(clients), func(i, j int) {
		clients[i], clients[j] = clients[j], clients[i]
	})

	sampled := clients[:k]
	slices.Sort(sampled)

	return sampled
}
