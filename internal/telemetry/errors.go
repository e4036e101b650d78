package telemetry

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is not enabled
	// in configuration.
	ErrDisabled = errors.New("telemetry is disabled in configuration")

	// ErrConnectionFailed indicates the InfluxDB server could not be
	// reached or is unhealthy.
	ErrConnectionFailed = errors.New("failed to connect to influxdb")

	// ErrNotConnected indicates an operation on a closed client.
	ErrNotConnected = errors.New("not connected to influxdb")
)
