// Package client implements the vehicle side of the bridge protocol.
//
// A Coordinator cycles IDLE → AWAITING_GRANT → CROSSING → IDLE over one
// TCP connection. While awaiting a grant it listens for both replies and
// scheduler invitations, re-requests after QUEUED replies and after
// silent timeouts, and claims an invitation with a fresh REQUEST_ACCESS.
// Lost connections are re-established with exponential backoff; a
// request the server rejects as invalid stops the vehicle for good.
package client
