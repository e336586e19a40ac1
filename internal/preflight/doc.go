// Package preflight provides readiness checks for the binaries and
// filesystem paths a backup run depends on.
//
// These checks run in two contexts:
//   - The workflow builder calls RunAll before collecting files. If any check
//     fails the run stops before mkisofs is started.
//   - The CLI "discback check" command prints every result.
//
// Checks are gated by configuration; cdrecord is only required when
// boundaries are queried from the device.
package preflight
