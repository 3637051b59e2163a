// Package preflight provides readiness checks for external services
// and filesystem paths that murmur depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to run when a
//     required check fails, so a misconfigured instance fails fast.
//   - The CLI "murmur status" command uses individual check functions
//     to display service health.
//
// Each check is gated by its config value -- unconfigured features are skipped.
package preflight
