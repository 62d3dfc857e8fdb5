// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mir

// maxOptimizerIterations bounds the optimizer fixpoint loop (§4.4: "runs
// ... until no further change, or a bounded iteration cap is reached").
const maxOptimizerIterations = 64

// Optimize runs the §4.4 pass fixpoint over body (constant folding,
// reference following, inlining, common-subexpression elimination, tree
// shaking, multiple flattening) until no pass reports a change or the
// iteration cap is reached. gen must be the same IdGenerator used to
// produce body, so inlining's alpha-renaming keeps minting ids from where
// lowering left off.
func Optimize(body *Body, gen *IdGenerator) {
	for iter := 0; iter < maxOptimizerIterations; iter++ {
		changed := false
		changed = constantFold(body, gen) || changed
		changed = followReferences(body) || changed
		changed = inline(body, gen) || changed
		changed = commonSubexpressionEliminate(body) || changed
		changed = flattenMultiples(body) || changed
		changed = treeShake(body) || changed
		if !changed {
			return
		}
	}
}
