// Package services defines shared utilities consumed by the backup workflow
// and the packages it drives.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and collect targets for
//     logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (invalid argument, external tool, unfittable) with errors.Is.
//
// Use these helpers when wiring new workflow logic so error handling and
// observability stay uniform across the pipeline.
package services
