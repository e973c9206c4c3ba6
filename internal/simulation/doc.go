// Package simulation runs the opinion dynamics on an evolving network.
//
// A run seeds a scale-free graph with uniform random opinions, snapshots it,
// then performs Steps asynchronous sweeps. Each sweep visits every node once
// in a fresh random order; a visited node interacts with one random
// neighbor through opinion.Adjust, and if the pair still disagrees by more
// than epsilon the node drops that tie and links to a random other node.
// Updates are written back immediately, so nodes later in the same sweep
// see them.
//
// Usage:
//
//	eng := simulation.NewEngine()
//	res, err := eng.Run(ctx, simulation.Params{
//	    Nodes: 2000, Steps: 100, Mu: 0.3, Epsilon: 0.2, Attachment: 2,
//	}, rand.New(rand.NewPCG(seed, 0)))
//
// The engine owns the graph for the whole run; callers must not share a
// *rand.Rand or a Result between goroutines.
package simulation
