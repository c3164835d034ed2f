package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/juhoohuj/triviacircle-backend/internal/registry"
	"github.com/juhoohuj/triviacircle-backend/internal/rooms"
	"github.com/juhoohuj/triviacircle-backend/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second // must be < pongWait

	maxFrameSize    = 4096
	dispatchTimeout = 1900 * time.Millisecond
)

// errNotInRoom rejects room-scoped actions from an unbound connection.
var errNotInRoom = errors.New("not in a room")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

// ConnContext carries per-connection identity through the router.
type ConnContext struct {
	ConnID string
	Conn   peer
	Server *WsServer
}

type WsServer struct {
	hub      *Hub
	registry *registry.Registry
	router   *Router
	roomSvc  rooms.IRoomService
	conns    sync.Map // connID -> peer, for evicting displaced bindings
}

func NewWsServer(h *Hub, reg *registry.Registry, roomSvc rooms.IRoomService) *WsServer {
	router := NewRouter()
	srv := &WsServer{
		hub:      h,
		registry: reg,
		router:   router,
		roomSvc:  roomSvc,
	}
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	wsConn := &clientConn{rawConn: rawConn}
	cc := &ConnContext{ConnID: uuid.NewString(), Conn: wsConn, Server: s}
	s.conns.Store(cc.ConnID, peer(wsConn))
	metrics.OpenConnections.Inc()
	zap.L().Debug("ws.connected", zap.String("conn_id", cc.ConnID))

	go s.reader(cc, wsConn)
	go s.pinger(wsConn)
}

// ---------------------------------------------------------------------------
//  Event handlers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, evCreateRoom, s.handleCreateRoom)
	Register(s.router, evJoinRoom, s.handleJoinRoom)
	Register(s.router, evLeaveRoom, s.handleLeaveRoom)
	Register(s.router, evChatMessage, s.handleChatMessage)
	Register(s.router, evPlayerUpdate, s.handlePlayerUpdate)
	Register(s.router, evGameEvent, s.handleGameEvent)
}

func (s *WsServer) handleCreateRoom(ctx context.Context, cc *ConnContext, req CreateRoomRequest) error {
	roomID, err := s.roomSvc.CreateRoom(ctx, req.Username, cc.ConnID)
	if err != nil {
		return err
	}

	prev, rebound := s.registry.Bind(cc.ConnID, roomID, req.Username)
	if rebound {
		s.abandonRoom(ctx, cc, prev)
	}
	s.hub.Join(roomID, cc.Conn)

	s.send(cc.Conn, evRoomCreated, RoomCreatedBody{RoomID: roomID, Username: req.Username})
	s.broadcastRoomDetails(ctx, roomID)
	zap.L().Info("room.created",
		zap.String("room_id", roomID), zap.String("username", req.Username))
	return nil
}

func (s *WsServer) handleJoinRoom(ctx context.Context, cc *ConnContext, req JoinRoomRequest) error {
	// Bind before the store write. Whichever of two same-username joins lands
	// its member write last sees the other's connection id and evicts it; the
	// write order guarantees the loser is already bound, so the eviction can
	// never miss and leave a second binding behind.
	prev, rebound := s.registry.Bind(cc.ConnID, req.RoomID, req.Username)

	snap, displaced, err := s.roomSvc.JoinRoom(ctx, req.RoomID, req.Username, cc.ConnID)
	if err != nil {
		// Restore whatever the registry held before.
		if rebound {
			s.registry.Bind(cc.ConnID, prev.RoomID, prev.Username)
		} else {
			s.registry.Unbind(cc.ConnID)
		}
		return err
	}

	// A connection lives in one room; rebinding abandons the old one.
	if rebound && !(prev.RoomID == req.RoomID && prev.Username == req.Username) {
		s.abandonRoom(ctx, cc, prev)
	}
	s.evictDisplaced(req.RoomID, displaced)
	s.hub.Join(req.RoomID, cc.Conn)

	s.send(cc.Conn, evJoinRoomSuccess, snap)
	s.broadcast(req.RoomID, evUserJoined, UserJoinedBody{Username: req.Username}, cc.Conn)
	s.broadcast(req.RoomID, evMessage,
		MessageBody{Username: systemUser, Text: req.Username + " has joined the room"}, nil)
	s.broadcastRoomDetails(ctx, req.RoomID)
	zap.L().Info("room.joined",
		zap.String("room_id", req.RoomID), zap.String("username", req.Username))
	return nil
}

func (s *WsServer) handleLeaveRoom(ctx context.Context, cc *ConnContext, _ LeaveRoomRequest) error {
	b, ok := s.registry.Unbind(cc.ConnID)
	if !ok {
		return errNotInRoom
	}
	s.abandonRoom(ctx, cc, b)
	return nil
}

// handleChatMessage is pass-through: the payload is forwarded verbatim and
// the sender identity is not checked against the binding.
func (s *WsServer) handleChatMessage(_ context.Context, _ *ConnContext, req ChatMessageRequest) error {
	s.broadcast(req.RoomID, evMessage, MessageBody{Username: req.Username, Text: req.Message}, nil)
	return nil
}

func (s *WsServer) handlePlayerUpdate(ctx context.Context, cc *ConnContext, req PlayerUpdateRequest) error {
	b, ok := s.registry.Lookup(cc.ConnID)
	if !ok {
		return errNotInRoom
	}
	err := s.roomSvc.UpdateMember(ctx, b.RoomID, b.Username, rooms.MemberPatch{
		Score:       req.Score,
		AnswerOrder: req.AnswerOrder,
		Active:      req.Active,
	})
	if err != nil {
		return err
	}
	s.broadcastRoomDetails(ctx, b.RoomID)
	return nil
}

// handleGameEvent forwards an opaque game event to the room under its own
// event name.
func (s *WsServer) handleGameEvent(_ context.Context, _ *ConnContext, req GameEventRequest) error {
	var body any
	if len(req.Payload) > 0 {
		body = req.Payload
	}
	s.broadcast(req.RoomID, req.Name, body, nil)
	return nil
}

// ---------------------------------------------------------------------------
//  Leave / disconnect cleanup (single shared path)
// ---------------------------------------------------------------------------

// abandonRoom runs the full membership cleanup for a binding that is already
// removed (or replaced) in the registry. Explicit leaves, disconnects and
// room switches all end up here.
func (s *WsServer) abandonRoom(ctx context.Context, cc *ConnContext, b registry.Binding) {
	if err := s.roomSvc.LeaveRoom(ctx, b.RoomID, b.Username); err != nil {
		zap.L().Warn("room.leave", zap.String("room_id", b.RoomID), zap.Error(err))
	}
	s.hub.Leave(b.RoomID, cc.Conn)
	s.broadcast(b.RoomID, evUserLeft, UserLeftBody{Username: b.Username}, nil)
	s.broadcast(b.RoomID, evMessage,
		MessageBody{Username: systemUser, Text: b.Username + " has left the room"}, nil)
	s.broadcastRoomDetails(ctx, b.RoomID)
	zap.L().Info("room.left",
		zap.String("room_id", b.RoomID), zap.String("username", b.Username))
}

// disconnect treats a dropped connection exactly like an explicit leave, so
// the store never retains a member bound to a dead connection.
func (s *WsServer) disconnect(ctx context.Context, cc *ConnContext) {
	b, ok := s.registry.Unbind(cc.ConnID)
	if !ok {
		return
	}
	s.abandonRoom(ctx, cc, b)
}

// evictDisplaced unbinds the connection whose member record a same-username
// rejoin just overwrote, so the loser of the race never holds a binding into
// a member it no longer owns. The socket is closed outright: a loser still
// mid-handler could otherwise re-enter the hub after this removal.
func (s *WsServer) evictDisplaced(roomID, connID string) {
	if connID == "" {
		return
	}
	if _, had := s.registry.Unbind(connID); !had {
		return
	}
	if v, ok := s.conns.Load(connID); ok {
		p := v.(peer)
		s.hub.Leave(roomID, p)
		p.closeNow()
	}
	zap.L().Debug("ws.binding_displaced",
		zap.String("room_id", roomID), zap.String("conn_id", connID))
}

// ---------------------------------------------------------------------------
//  Fanout helpers
// ---------------------------------------------------------------------------

func (s *WsServer) send(p peer, event string, body any) {
	if err := p.writeJSON(envelope(event, body)); err != nil {
		zap.L().Debug("ws.send", zap.String("event", event), zap.Error(err))
	}
}

func (s *WsServer) broadcast(roomID, event string, body any, exclude peer) {
	frame, err := json.Marshal(envelope(event, body))
	if err != nil {
		zap.L().Warn("ws.marshal", zap.String("event", event), zap.Error(err))
		return
	}
	s.hub.Broadcast(roomID, frame, exclude)
}

// broadcastRoomDetails recomputes the membership snapshot from the store at
// emit time; details frames are never patched incrementally.
func (s *WsServer) broadcastRoomDetails(ctx context.Context, roomID string) {
	snap, err := s.roomSvc.GetRoom(ctx, roomID)
	if err != nil {
		return // room already gone
	}
	s.broadcast(roomID, evRoomDetails, snap, nil)
}

func envelope(event string, body any) map[string]any {
	env := map[string]any{"event": event}
	if body != nil {
		env["body"] = body
	}
	return env
}

// ---------------------------------------------------------------------------
//  Connection loops
// ---------------------------------------------------------------------------

func (s *WsServer) reader(cc *ConnContext, conn *clientConn) {
	defer func() {
		s.disconnect(context.Background(), cc)
		s.conns.Delete(cc.ConnID)
		conn.closeNow()
		metrics.OpenConnections.Dec()
		zap.L().Debug("ws.disconnected", zap.String("conn_id", cc.ConnID))
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		err := s.router.dispatch(ctx, cc, env)
		cancel()

		if err == nil {
			continue
		}
		if errors.Is(err, errUnknownEvent) {
			// Logged only; no error frame, no state change.
			zap.L().Info("ws.unknown_event", zap.String("event", env.Event))
			continue
		}
		// Validation and state errors go to the caller only, never the room.
		s.send(cc.Conn, evErrorMessage, ErrorBody{Error: err.Error()})
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			conn.closeNow()
			return
		}
	}
}
