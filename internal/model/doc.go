// Package model defines shared data types for the realtime sync client.
//
// Conventions:
//   - Timestamps: time.Time in UTC, serialized as RFC 3339
//   - Event payloads: json.RawMessage, decoded by subscribers
//   - Action IDs: uuid.UUID, generated at enqueue time
package model
