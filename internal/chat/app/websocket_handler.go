package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatWebsocketHandler hosts one Dashboard per websocket connection
type ChatWebsocketHandler struct {
	deps         DashboardDeps
	pingInterval time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(deps DashboardDeps) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		deps:         deps,
		pingInterval: 10 * time.Minute,
	}
}

// messageWriter the write side of a websocket connection
type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsSession serializes writes, state pushes arrive from realtime goroutines
type wsSession struct {
	mu   sync.Mutex
	conn messageWriter
}

func (s *wsSession) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// sendResponse - 發送 JSON 給前端
func (s *wsSession) sendResponse(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal websocket response", zap.Error(err))
		return
	}
	if err := s.write(websocket.TextMessage, b); err != nil {
		logger.Log.Debug("write message error", zap.Error(err))
	}
}

func (s *wsSession) sendError(action, errorMsg string) {
	s.sendResponse(domain.WSResponse{
		Action:  string(domain.ErrorAction),
		Success: false,
		Payload: map[string]interface{}{"action": action},
		Error:   errorMsg,
	})
}

func (s *wsSession) pushState(snap domain.Snapshot) {
	s.sendResponse(domain.WSResponse{
		Action:  string(domain.StateUpdate),
		Success: true,
		Payload: map[string]interface{}{"snapshot": snap},
	})
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	accessToken, _ := conn.Locals(middlewares.TokenAccess).(string)
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	session := &wsSession{conn: conn}

	dashboard, err := OpenDashboard(ctx, h.deps, accessToken)
	if err != nil {
		logger.Log.Warn("open dashboard", zap.String("user_id", userID), zap.Error(err))
		session.sendError("connect", err.Error())
		closeWebSocketConnection(session, conn, websocket.ClosePolicyViolation, "not authenticated")
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	ctxClose, cancel := context.WithCancel(ctx)

	defer func() {
		ticker.Stop()
		cancel()
		if err := dashboard.Close(context.Background()); err != nil {
			logger.Log.Warn("close dashboard", zap.String("user_id", userID), zap.Error(err))
		}
		conn.Close()
		logger.Log.Info("websocket close", zap.String("user_id", userID))
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket closed by client", zap.Int("code", code), zap.String("text", text))
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("user_id", userID))
		return nil
	})

	dashboard.OnChange(session.pushState)
	session.pushState(dashboard.Snapshot())

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := session.write(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Debug("ping error", zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("user_id", userID))
			} else {
				logger.Log.Warn("websocket read error", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			session.sendError("", "unsupported message type")
			continue
		}

		var req domain.WSRequest
		if err := json.Unmarshal(message, &req); err != nil {
			session.sendError("", "invalid request")
			continue
		}

		resp, done := h.execAction(ctxClose, dashboard, req)
		if resp.Error != "" {
			logger.Log.Warn("websocket action failed", zap.String("user_id", userID), zap.String("action", req.Action), zap.String("err", resp.Error))
		}
		session.sendResponse(resp)
		if done {
			closeWebSocketConnection(session, conn, websocket.CloseNormalClosure, "signed out")
			return
		}
	}
}

// execAction runs one client action, done reports that the session ended
func (h *ChatWebsocketHandler) execAction(ctx context.Context, d *Dashboard, req domain.WSRequest) (domain.WSResponse, bool) {
	resp := domain.WSResponse{Action: req.Action, Payload: map[string]interface{}{}}
	var err error
	done := false

	switch domain.Action(req.Action) {
	case domain.LoadContacts:
		err = d.ReloadContacts(ctx)
	case domain.SelectContact:
		err = d.Select(ctx, req.ContactID)
	case domain.DeselectContact:
		d.Deselect()
	case domain.SetDraft:
		d.SetDraft(req.Content)
	case domain.SendMessage:
		var msg *domain.Message
		msg, err = d.Send(ctx, req.Content)
		if msg != nil {
			resp.Payload["message"] = msg
		}
	case domain.RetryMessage:
		var msg *domain.Message
		msg, err = d.Retry(ctx, req.MessageID)
		if msg != nil {
			resp.Payload["message"] = msg
		}
	case domain.Refresh:
		err = d.Refresh(ctx)
	case domain.Logout:
		err = d.Logout(ctx)
		done = true
	default:
		err = errors.New("unknown action")
	}

	if err != nil {
		resp.Error = err.Error()
		if errors.Is(err, errprocess.ErrNotAuthenticated) {
			done = true
		}
	} else {
		resp.Success = true
	}
	return resp, done
}

func closeWebSocketConnection(s *wsSession, conn *websocket.Conn, code int, reason string) {
	if err := s.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		logger.Log.Debug("send close message", zap.Error(err))
	}
	conn.Close()
}
