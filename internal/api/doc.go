// Package api implements the read-only HTTP query API and the WebSocket
// receipt stream for lumid.
//
// This package provides:
//   - REST endpoints for device status, groups, schedules and the journal
//   - the current state root and height for external verification
//   - a WebSocket hub that streams ledger receipts and device state changes
//   - middleware for request IDs, logging, panic recovery and CORS
//
// # Architecture
//
// Writes never enter through HTTP. Operations arrive as chain blocks over
// MQTT and are applied by the chain follower; the API only reads the
// dispatcher's state and the SQLite journal. The Hub is registered as a
// dispatcher observer, so every journaled operation is pushed to clients
// subscribed to the "ledger.receipt" channel and every changed device to
// "device.state".
//
// Ledger rejections map to HTTP statuses: the not-found codes become 404,
// everything else 400. The numeric ledger code is always included in the
// error body.
package api
