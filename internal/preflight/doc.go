// Package preflight validates the environment before the retrieval
// engine starts.
//
// The package checks:
//   - Disk space under the data directory (minimum 100MB)
//   - Memory availability (minimum 1GB)
//   - Write permissions in the data directory
//   - File descriptor limits (minimum 1024)
//   - Embedding, chat, and reranker provider reachability
//
// Use the Checker type to run the validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, dataDir)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
