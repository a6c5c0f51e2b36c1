// Package internaldefs holds the metric names, help strings and histogram
// bounds shared by the OTel and Prometheus exporters, so both expose the
// same series.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
