// Package archive persists received envelopes to PostgreSQL.
//
// The writer subscribes to the websocketMessage topic, buffers envelopes in a
// growable queue and inserts them in batches. Inserts are append-only and
// idempotent on the envelope id.
package archive
