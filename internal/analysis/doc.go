// Package analysis caches AI-generated insight envelopes per memo and
// mode. Results live in a fast in-memory map backed by the record store;
// each save appends a store row so the full history of computed analyses
// is retained while reads see only the latest value.
package analysis
