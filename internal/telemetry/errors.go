package telemetry

import "errors"

// Domain-specific errors for the telemetry pipeline.
// These are internal: the router logs and drops, it never returns them
// to the broker layer.
var (
	// ErrInvalidTopic is returned when a topic does not match the
	// namespace scheme (wrong namespace, wrong depth, empty segments).
	ErrInvalidTopic = errors.New("telemetry: topic does not match namespace scheme")

	// ErrUnknownKind is returned when the kind segment of a topic is not
	// one of data, status, alerts or config.
	ErrUnknownKind = errors.New("telemetry: unknown message kind")

	// ErrMalformedPayload is returned by handlers when a decoded payload
	// is missing required structure (e.g. a data message without readings).
	ErrMalformedPayload = errors.New("telemetry: malformed payload")
)
