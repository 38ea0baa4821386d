// Package chat implements the real-time session manager behind relaychat.
//
// A Hub owns one Registry (who is connected, and where their frames go) and
// one Broadcast channel (the process-wide fan-out for chat and system
// events). Every accepted connection becomes a Session that runs three
// goroutines: an outbound relay draining the session's own queue to the
// transport, an inbound processor decoding, persisting and routing client
// frames, and a broadcast subscriber forwarding fan-out traffic into the
// session's queue. The first goroutine to stop tears the session down.
package chat
