// Package connection implements the communication manager's connection core.
//
// The Controller:
//   - Owns the single logical connection to the message server
//   - Buffers outgoing messages while disconnected and replays them on open
//   - Queues raw incoming envelopes and publishes them one per drain tick
//   - Publishes a staleness label every liveness tick
//
// The physical link and its reconnect/backoff policy live in WSTransport,
// which reports lifecycle changes through Handlers.
package connection
