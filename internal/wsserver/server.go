package wsserver

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/subscription"
	"github.com/cuemby/spacetime/pkg/log"
	"github.com/cuemby/spacetime/pkg/metrics"
)

// Codec turns protocol messages into wire bytes and back. BSATN and JSON
// clients share this connection lifecycle; only the codec differs, the
// same split original_source/websocket.rs's WebsocketFormat trait draws.
type Codec interface {
	EncodeServerMessage(msg protocol.ServerMessage) ([]byte, error)
	DecodeClientMessage(data []byte) (protocol.ClientMessage, error)
}

// Handler reacts to connection lifecycle events and decoded client
// messages; the engine package implements this to wire reducer calls and
// subscription registration into a live socket.
type Handler interface {
	OnConnect(conn *subscription.Connection)
	OnMessage(conn *subscription.Connection, msg protocol.ClientMessage)
	OnDisconnect(conn *subscription.Connection)
}

// Server upgrades HTTP requests to WebSocket connections, mints each one's
// Identity/Address/token, and pumps messages to/from the subscription
// Manager until the socket or the connection's outbound queue gives out.
// Grounded on pkg/api/server.go's Start/Stop lifecycle, adapted to a plain
// HTTP+WebSocket listener instead of a TLS gRPC one.
type Server struct {
	mgr      *subscription.Manager
	registry *protocol.Registry
	codec    Codec
	handler  Handler
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu    sync.Mutex
	socks map[*subscription.Connection]*websocket.Conn
}

func NewServer(mgr *subscription.Manager, registry *protocol.Registry, codec Codec, handler Handler) *Server {
	return &Server{
		mgr:      mgr,
		registry: registry,
		codec:    codec,
		handler:  handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		socks: make(map[*subscription.Connection]*websocket.Conn),
	}
}

// Start listens on addr and serves WebSocket upgrades until Stop is
// called.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/database/subscribe", s)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	log.WithComponent("wsserver").Info().Str("addr", addr).Msg("listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the HTTP listener immediately (http.Server.Close); upgraded
// WebSocket connections are left to close on their own as their pumps
// observe a read error.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("wsserver").Error().Err(err).Msg("upgrade failed")
		return
	}

	token := r.URL.Query().Get("token")
	identity, tok, address, err := s.registry.Authenticate(token)
	if err != nil {
		_ = wsConn.Close()
		return
	}

	conn := subscription.NewConnection(identity, address)
	s.mgr.Add(conn)
	s.mu.Lock()
	s.socks[conn] = wsConn
	s.mu.Unlock()
	metrics.SubscriptionsActive.Inc()

	logger := log.WithConnection(address.String())
	conn.TrySend(&protocol.IdentityToken{Identity: identity, Token: tok, Address: address})
	s.handler.OnConnect(conn)

	var closeOnce sync.Once
	done := make(chan struct{})
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	go s.writePump(wsConn, conn, logger, closeDone)
	s.readPump(wsConn, conn, logger, closeDone)
	<-done

	s.mu.Lock()
	delete(s.socks, conn)
	s.mu.Unlock()
	s.mgr.Remove(conn)
	s.handler.OnDisconnect(conn)
	metrics.SubscriptionsActive.Dec()
}

// Disconnect forcibly tears down conn: spec.md §5's backpressure policy
// for a subscriber whose outbound queue is full.
func (s *Server) Disconnect(conn *subscription.Connection) {
	s.mu.Lock()
	wsConn, ok := s.socks[conn]
	s.mu.Unlock()
	if ok {
		_ = wsConn.Close()
	}
	metrics.SubscriberDisconnectsTotal.WithLabelValues("backpressure").Inc()
}

func (s *Server) readPump(wsConn *websocket.Conn, conn *subscription.Connection, logger zerolog.Logger, closeDone func()) {
	defer closeDone()
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("read pump exiting")
			return
		}
		msg, err := s.codec.DecodeClientMessage(data)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping undecodable client message")
			continue
		}
		s.handler.OnMessage(conn, msg)
	}
}

func (s *Server) writePump(wsConn *websocket.Conn, conn *subscription.Connection, logger zerolog.Logger, closeDone func()) {
	defer closeDone()
	for msg := range conn.Outbox() {
		encoded, err := s.codec.EncodeServerMessage(msg)
		if err != nil {
			logger.Error().Err(err).Msg("dropping unencodable server message")
			continue
		}
		if err := wsConn.WriteMessage(websocket.BinaryMessage, encoded); err != nil {
			logger.Debug().Err(err).Msg("write pump exiting")
			return
		}
	}
}
