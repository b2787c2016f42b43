// Package coocgo provides an incremental co-occurrence statistics and
// clustering engine for Go.
//
// Coocgo counts word pairs and disjunct sections over dependency parses,
// derives information-theoretic statistics from the counts, and merges
// similar words into clusters by fractionally redistributing their
// observation vectors. Counts live in a pluggable row store and survive
// restarts via block snapshots.
//
// # Quick Start
//
//	ctx := context.Background()
//	sess, _ := coocgo.Clique(6).Build()
//	defer sess.Close()
//
//	sess.ObserveBatch(ctx, parses)       // count pairs + sections
//	sess.FetchAll(ctx)                   // load the working set
//	sess.ComputeMarginals(ctx)           // wildcard rows N(x,*), N(*,y), N(*,*)
//	sess.ComputeMutualInformation(ctx)   // per-pair MI into row means
//
//	top, _ := sess.Rank().Top(10).By(coocgo.ScoreMean).Execute(ctx)
//
// # Counting Modes
//
// Coocgo provides three pair-counting modes for different corpus shapes:
//
//	// 1. ANY LINK — one pair per parser link.
//	//    Counts only what the parser asserted.
//	sess, _ := coocgo.AnyLink().Build()
//
//	// 2. CLIQUE — every word pair within a window, links or not.
//	//    window <= 0 pairs every word with every later word.
//	sess, _ := coocgo.Clique(6).Build()
//
//	// 3. DISTANCE CLIQUE — clique pairs plus per-distance sub-counts
//	//    for separations up to maxDistance.
//	sess, _ := coocgo.DistanceClique(6, 3).Build()
//
// # Clustering
//
// Merge folds two observation vectors into a cluster entity, moving a
// fraction of every donor count and keeping sections and their
// cross-section copies in detailed balance:
//
//	cls, rep, _ := sess.Merge(ctx, model.Word("run"), model.Word("walk"), 0.5, 0)
//	fmt.Println(cls.Name, rep.Moved)
//
//	report, _ := sess.VerifyConsistency(ctx) // report.Pass() after any merge
//
// # Persistence
//
// Counts stream to any io.Writer as compressed block snapshots, and the
// archive layer versions them in object storage (S3, MinIO, or a local
// directory):
//
//	sess.SaveSnapshot(ctx, w)                  // stream out
//	sess.LoadSnapshot(ctx, r)                  // restore before FetchAll
//	sess.PublishSnapshot(ctx, arc, "snap-7")   // upload + move current marker
//	sess.LoadLatestSnapshot(ctx, arc)          // restore whatever is current
//
// # Key Features
//
//   - Link, clique and distance-annotated pair counting over parses
//   - Wildcard marginals, log-likelihood and pointwise mutual information
//   - Fractional cluster merging with detailed-balance verification
//   - Pluggable row store (memory, SQLite, LRU-cached)
//   - Compressed block snapshots (LZ4, S2) with pluggable codecs
//   - Versioned snapshot archives on S3, MinIO or local disk
//   - Structured logging, metrics hooks and resource admission control
package coocgo
