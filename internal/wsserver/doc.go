// Package wsserver hosts the WebSocket connection lifecycle a subscriber
// speaks spec.md §6's protocol over: upgrading an HTTP request, minting an
// Identity/Address/token pair, then pumping decoded ClientMessages in and
// encoded ServerMessages out until the socket closes or the connection's
// bounded outbound queue overflows.
//
// Grounded on the teacher's pkg/api/server.go for the listen/Start/Stop
// lifecycle shape (net.Listen, a long-running Serve call, graceful Stop),
// adapted from a TLS gRPC server to a plain-HTTP WebSocket upgrade using
// github.com/gorilla/websocket, since spec.md's external interface is a
// client-facing duplex socket rather than an internal cluster RPC.
package wsserver
