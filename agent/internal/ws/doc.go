// Package ws streams backend state to WebSocket clients.
//
// Hub sends the full snapshot to a client as soon as it connects, then
// again on every tick and whenever Notify is called (the agent calls it at
// the end of each check cycle). Notifications arriving faster than they can
// be sent are coalesced into one broadcast.
//
// A client may pass ?backend=<name> to receive only that backend.
//
// Message format:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The agent mounts the hub at /ws/stream.
package ws
