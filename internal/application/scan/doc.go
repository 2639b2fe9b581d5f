// Package scan runs probes against a target with cache-first semantics and
// assembles their outcomes into a report.
//
// A Runner owns one probe invocation: it consults the cache, executes the
// probe under a deadline on a miss, and writes back only successful results.
// The Orchestrator resolves requested probe names against a Registry, runs
// one Runner per probe concurrently, and always returns one result per
// requested probe. Probe faults, panics and timeouts become failed results;
// only an unservable request (unknown probe, empty target) is returned as an
// error.
package scan
