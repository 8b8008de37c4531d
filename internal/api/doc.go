// Package api provides the REST client for the workforce backend.
//
// Endpoints used by the realtime core:
//   - GET  /{role}/{id}/updates                      pending events (polling fallback)
//   - POST /{role}/approval/{approvalID}/process     queued approval decisions
//   - POST /{role}/alert/{alertID}/acknowledge       queued alert acknowledgements
//
// All outbound action endpoints are idempotent by entity ID, so at-least-once
// replay from the offline queue is safe.
package api
