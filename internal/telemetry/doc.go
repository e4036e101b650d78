// Package telemetry records agent metrics to InfluxDB.
//
// Writes are non-blocking and batched; a slow or unreachable InfluxDB
// never delays command processing. Telemetry is optional: all write
// methods are nil-receiver safe, so callers hold a possibly-nil client
// without guarding every call site.
package telemetry
