// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldSource    = "source"

	// Entity fields
	FieldZone   = "zone"
	FieldClient = "client"
	FieldTopic  = "topic"
	FieldGA     = "group_address"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
