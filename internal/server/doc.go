// Package server is the WebSocket transport of the presence service.
//
// A Hub owns the live connections and implements presence.Publisher: the
// dispatcher hands it outbound events and room subscription changes, and the
// hub fans them out to bounded per-connection send queues. Each Client runs
// a read pump that decodes JSON envelopes into presence events and waits for
// their acks, and a write pump that writes one envelope per frame and pings
// the peer. Configuration, origin checks, throttling, routes and the App
// that ties everything together live in their own files.
package server
