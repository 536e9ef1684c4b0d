// Package protocol defines the wire format spoken between vehicles and
// the bridge server.
//
// Frames are UTF-8 JSON objects, one per line. Clients send Request
// frames; the server answers each with exactly one Response and may also
// push unsolicited invitations (PERMISSION_GRANTED with reason
// SCHEDULED_INVITE) on the same connection at any time.
//
// # Requests
//
//	{"id":"car-7","direction":"left","type":"REQUEST_ACCESS","timestamp":"2025-01-02T15:04:05Z"}
//
// id is trimmed and NFC-normalized, direction is case-insensitive, and
// timestamp is informational only.
//
// # Responses
//
//	{"status":"PERMISSION_DENIED","reason":"QUEUED","message":"...","current_direction":"right","timestamp":"..."}
//
// Clients must branch on status and reason, never on message text.
package protocol
