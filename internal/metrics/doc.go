// Package metrics exposes Prometheus gauges and counters describing backup
// runs.
//
// discback runs as a batch job, so metrics are not served over HTTP. Each run
// records into a Recorder and WriteTextfile exports the registry in the
// node_exporter textfile collector format.
package metrics
