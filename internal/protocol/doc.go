// Package protocol defines the wire message taxonomy exchanged over a
// subscription connection (spec.md §6), the BSATN row-list packing used
// for large payloads, and identity/address/token minting for a connecting
// client (spec.md §4.10).
//
// Grounded on original_source/crates/client-api-messages/src/websocket.rs
// for the ClientMessage/ServerMessage/DatabaseUpdate/TableUpdate/
// QueryUpdate/BsatnRowList shapes, adapted from Rust's tagged enums onto Go
// marker-method interfaces; and on the teacher's pkg/manager/token.go for
// the crypto/rand-backed credential minting pattern (here generalized to
// Identity/Address rather than a single JoinToken string).
package protocol
