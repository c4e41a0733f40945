// Package analysis orchestrates one bounded-memory profiling run: the
// streaming coordinator pulls chunks from a row source at sizes chosen by the
// memory governor, feeds the univariate and covariance accumulators, and
// after stream exhaustion runs PCA, clustering and outlier detection over the
// frozen covariance matrix and a bounded row sample.
//
// Execution is single-threaded and cooperative: chunk consumption is the only
// suspension point, cancellation is checked once per chunk boundary and once
// between post-stream stages, and no accumulator state is shared across
// sessions. Cancellation finalizes partial state and returns it with a
// cancelled warning; only an unmitigable memory ceiling aborts the run, and
// even that error carries the partial result.
package analysis
