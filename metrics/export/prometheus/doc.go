// Package prometheus renders Engine counters in the Prometheus text
// exposition format. Mount Exporter.Handler on a metrics route; nothing is
// registered globally.
package prometheus
