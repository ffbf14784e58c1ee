package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/pkg/config"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/metrics"
	"chat_realtime_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session one authenticated websocket connection
type Session struct {
	ConnID   string
	Identity domain.Identity
	limiter  *rate.Limiter
}

// NewSession create Session with an inbound event limiter, eventsPerSecond <= 0 disables it
func NewSession(connID string, id domain.Identity, eventsPerSecond float64, burst int) *Session {
	s := &Session{ConnID: connID, Identity: id}
	if eventsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
	}
	return s
}

// ChatWebsocketHandler 可包含所有需要的 UseCase
type ChatWebsocketHandler struct {
	chatRepo    repository.ChatRepository
	messageUC   *MessageUseCase
	readUC      *ReadReceiptUseCase
	registry    *hub.Registry
	broadcaster *hub.Broadcaster
	presence    *hub.Presence
	typing      *hub.Typing
	cfg         config.Realtime
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	chatRepo repository.ChatRepository,
	messageUC *MessageUseCase,
	readUC *ReadReceiptUseCase,
	registry *hub.Registry,
	broadcaster *hub.Broadcaster,
	presence *hub.Presence,
	typing *hub.Typing,
	cfg config.Realtime,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		chatRepo:    chatRepo,
		messageUC:   messageUC,
		readUC:      readUC,
		registry:    registry,
		broadcaster: broadcaster,
		presence:    presence,
		typing:      typing,
		cfg:         cfg.Defaults(),
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	username, _ := conn.Locals(middlewares.TokenUsername).(string)
	if memberID == "" {
		h.reject(conn, domain.ErrAuth)
		return
	}

	session := NewSession(uuid.New().String(), domain.Identity{UserID: memberID, Username: username},
		h.cfg.EventsPerSecond, h.cfg.EventBurst)
	log := logger.Log.With(zap.String("userID", memberID), zap.String("connID", session.ConnID))

	transport := newWSTransport(conn, h.cfg.SendBuffer, h.cfg.PingInterval, h.cfg.WriteWait)
	transport.start(session.ConnID)

	if err := h.presence.Connect(ctx, session.ConnID, session.Identity, transport); err != nil {
		log.Error("websocket register failed", zap.Error(err))
		transport.stop()
		return
	}
	log.Info("websocket connected")

	defer func() {
		transport.stop()
		h.disconnect(session)
		log.Info("websocket close")
	}()

	conn.SetReadLimit(h.cfg.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		// 1. 讀取前端訊息
		mt, message, err := conn.ReadMessage()
		if err != nil {
			// 檢查是否為 Close 正常結束
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.Info("connection closed by client")
			} else {
				//直接斷線 1006 / read deadline
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if mt != websocket.TextMessage {
			h.sendError(session, "", "", fmt.Errorf("%w: only text frames are accepted", domain.ErrValidation))
			continue
		}
		h.Dispatch(ctx, session, message)
	}
}

// disconnect runs regardless of in-flight operations of the connection
func (h *ChatWebsocketHandler) disconnect(s *Session) {
	// 斷線不受 request ctx 取消影響
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userID, offline, err := h.presence.Disconnect(ctx, s.ConnID)
	if err != nil {
		logger.Log.Warn("websocket unregister failed", zap.String("connID", s.ConnID), zap.Error(err))
		return
	}
	if offline {
		h.typing.ClearUser(userID)
	}
}

// Dispatch decode one inbound frame and route it by its event variant.
// Errors are acknowledged to this connection only.
func (h *ChatWebsocketHandler) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendError(s, "", "", fmt.Errorf("%w: invalid json", domain.ErrValidation))
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		h.sendError(s, req.Event, req.AckID, domain.ErrRateLimited)
		return
	}

	ev, err := domain.DecodeClientEvent(req)
	if err != nil {
		h.sendError(s, req.Event, req.AckID, err)
		return
	}

	data, err := h.handle(ctx, s, ev)
	if err != nil {
		if !isClientError(err) {
			logger.Log.Error("websocket event failed",
				zap.String("userID", s.Identity.UserID),
				zap.String("event", req.Event),
				zap.Error(err))
		}
		h.sendError(s, req.Event, req.AckID, err)
		return
	}

	metrics.WsEventsTotal.WithLabelValues(eventLabel(req.Event), "ok").Inc()
	if req.AckID != "" {
		h.send(s, domain.NewEvent(domain.EventAck, domain.AckPayload{Event: req.Event, AckID: req.AckID, Data: data}))
	}
}

func (h *ChatWebsocketHandler) handle(ctx context.Context, s *Session, ev domain.ClientEvent) (interface{}, error) {
	switch e := ev.(type) {
	//進入聊天室
	case *domain.JoinChatRequest:
		if err := requireMember(ctx, h.chatRepo, e.ChatID, s.Identity.UserID); err != nil {
			return nil, err
		}
		if err := h.registry.JoinRoom(s.ConnID, domain.ChatRoom(e.ChatID)); err != nil {
			return nil, err
		}
		return map[string]string{"chatId": e.ChatID}, nil

	//離開聊天室
	case *domain.LeaveChatRequest:
		h.registry.LeaveRoom(s.ConnID, domain.ChatRoom(e.ChatID))
		h.typing.Stop(e.ChatID, s.Identity, s.ConnID)
		return map[string]string{"chatId": e.ChatID}, nil

	//傳送資料
	case *domain.SendMessageRequest:
		msg, err := h.messageUC.Send(ctx, s.Identity, e.Input(s.Identity.UserID))
		if err != nil {
			return nil, err
		}
		return map[string]string{"messageId": msg.ID}, nil

	case *domain.TypingStartRequest:
		if !h.registry.InRoom(s.ConnID, domain.ChatRoom(e.ChatID)) {
			return nil, domain.ErrNotAuthorized
		}
		h.typing.Start(e.ChatID, s.Identity, s.ConnID)
		return nil, nil

	case *domain.TypingStopRequest:
		h.typing.Stop(e.ChatID, s.Identity, s.ConnID)
		return nil, nil

	//讀取訊息
	case *domain.MarkReadRequest:
		receipt, advanced, err := h.readUC.MarkRead(ctx, e.ChatID, s.Identity.UserID, e.MessageID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"readAt": receipt.ReadAt, "advanced": advanced}, nil
	}
	return nil, fmt.Errorf("%w: unsupported event %q", domain.ErrValidation, ev.Action())
}

func (h *ChatWebsocketHandler) send(s *Session, evt domain.Event) {
	if err := h.broadcaster.SendTo(s.ConnID, evt); err != nil {
		logger.Log.Debug("send to connection failed", zap.String("connID", s.ConnID), zap.Error(err))
	}
}

func (h *ChatWebsocketHandler) sendError(s *Session, event, ackID string, err error) {
	metrics.WsEventsTotal.WithLabelValues(eventLabel(event), domain.ErrorCode(err)).Inc()
	h.send(s, domain.NewErrorEvent(event, ackID, err))
}

// eventLabel client controlled names never become label values
func eventLabel(event string) string {
	if a := domain.Action(event); a.Known() {
		return string(a)
	}
	return "unknown"
}

// reject the connection before registration
func (h *ChatWebsocketHandler) reject(conn *websocket.Conn, err error) {
	frame, _ := json.Marshal(domain.NewErrorEvent("connect", "", err))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
}

func isClientError(err error) bool {
	return !errors.Is(err, domain.ErrStorage) && domain.ErrorCode(err) != "internal_error"
}
