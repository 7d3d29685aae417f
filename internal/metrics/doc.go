// Package metrics records run metrics for pkgindex.
//
// Components receive a Recorder and default to NoopRecorder, so metrics are
// optional everywhere. PrometheusRecorder registers its collectors with a
// caller-supplied registry; the registry can be exported as a node exporter
// textfile after a run or served over HTTP by the daemon.
package metrics
