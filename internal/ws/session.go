package ws

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"poker-service/internal/presence"
	"poker-service/internal/protocol"
	"poker-service/internal/telemetry"
	appErr "poker-service/pkg/errors"
	"poker-service/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// closeError ends the session with a specific close code after sending err.
type closeError struct {
	err  *appErr.AppError
	code int
}

func (e *closeError) Error() string { return e.err.Error() }
func (e *closeError) Unwrap() error { return e.err }

type session struct {
	id     string
	gw     *Gateway
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once
	closeCode int
	closeText string

	// read loop only
	violations int

	mu      sync.Mutex
	version string
	userID  string
}

func (s *session) SessionID() string { return s.id }

// Push implements presence.Subscriber. It never blocks.
func (s *session) Push(st presence.TableState) bool {
	frame, err := protocol.Encode(s.wireVersion(), protocol.TypeTableState, "", st, time.Now())
	if err != nil {
		logger.Log.Error("encode table_state failed", zap.Error(err))
		return false
	}
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *session) negotiated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *session) wireVersion() string {
	if v := s.negotiated(); v != "" {
		return v
	}
	return s.gw.defaultVersion()
}

func (s *session) setVersion(v string) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

func (s *session) user() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// bind attaches userID. A session never rebinds to a different user.
func (s *session) bind(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" && s.userID != userID {
		return false
	}
	s.userID = userID
	return true
}

func (s *session) run() {
	go s.writeLoop()
	s.readLoop()
}

func (s *session) readLoop() {
	defer s.finish()

	touch := func() {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.gw.readTimeout()))
	}
	touch()
	s.conn.SetPongHandler(func(string) error {
		touch()
		return nil
	})

	limit := s.gw.cfg.MaxFrameBytes
	for {
		_, r, err := s.conn.NextReader()
		if err != nil {
			s.logReadErr(err)
			return
		}
		touch()
		frame, err := io.ReadAll(io.LimitReader(r, limit+1))
		if err != nil {
			s.logReadErr(err)
			return
		}
		if int64(len(frame)) > limit {
			// consume the rest so the close frame is not lost to a reset
			_, _ = io.Copy(io.Discard, r)
			telemetry.M().Violation(s.ctx, appErr.ErrFrameTooLarge.Code)
			s.fail("", appErr.ErrFrameTooLarge.WithMessage("frame exceeds %d bytes", limit), websocket.CloseMessageTooBig)
			return
		}
		if !s.handle(frame) {
			return
		}
	}
}

func (s *session) logReadErr(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		telemetry.M().Violation(s.ctx, appErr.ErrFrameTooLarge.Code)
		s.closeWith(websocket.CloseMessageTooBig, "frame too large")
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Log.Info("WS read error", zap.Error(err), zap.String("sessionId", s.id), zap.String("userId", s.user()))
	}
}

// handle processes one frame and reports whether the session stays open.
func (s *session) handle(frame []byte) bool {
	env, err := protocol.Decode(frame)
	if err != nil {
		return s.violation("", err)
	}
	if env.Type != protocol.TypeHello && s.negotiated() == "" {
		return s.violation(env.RequestID, appErr.ErrHelloRequired)
	}
	rt, ok := s.gw.routes[env.Type]
	if !ok {
		return s.violation(env.RequestID, appErr.ErrInvalidEnvelope.WithMessage("unknown type %q", env.Type))
	}
	if rt.protected && s.user() == "" {
		s.violations = 0
		s.sendError(env.RequestID, appErr.ErrAuthRequired)
		return true
	}

	err = rt.handle(s.ctx, s, env)
	var ce *closeError
	switch {
	case err == nil:
	case errors.As(err, &ce):
		telemetry.M().Violation(s.ctx, ce.err.Code)
		s.fail(env.RequestID, ce.err, ce.code)
		return false
	case appErr.IsKind(err, appErr.KindProtocol):
		return s.violation(env.RequestID, err)
	default:
		s.sendError(env.RequestID, err)
	}
	s.violations = 0
	return true
}

func (s *session) violation(requestID string, err error) bool {
	e := appErr.As(err)
	s.violations++
	telemetry.M().Violation(s.ctx, e.Code)
	if s.violations >= s.gw.cfg.MaxViolations {
		logger.Log.Info("closing session after protocol violations",
			zap.String("sessionId", s.id), zap.Int("violations", s.violations), zap.String("code", e.Code))
		s.fail(requestID, e, websocket.CloseProtocolError)
		return false
	}
	s.sendError(requestID, e)
	return true
}

// fail sends a final error frame and closes with code.
func (s *session) fail(requestID string, e *appErr.AppError, code int) {
	s.sendError(requestID, e)
	s.closeWith(code, e.Code)
}

func (s *session) sendError(requestID string, err error) {
	e := appErr.As(err)
	msg := e.Message
	if e.Kind == appErr.KindInternal {
		logger.Log.Error("ws request failed", zap.String("sessionId", s.id), zap.Error(err))
		msg = appErr.ErrInternal.Message
	}
	_ = s.reply(requestID, protocol.TypeError, protocol.Error{Code: e.Code, Message: msg})
}

// reply queues a response frame, waiting for room in the buffer.
func (s *session) reply(requestID, typ string, payload any) error {
	frame, err := protocol.Encode(s.wireVersion(), typ, requestID, payload, time.Now())
	if err != nil {
		return err
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return nil
	}
}

func (s *session) closeWith(code int, text string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeText = text
		close(s.quit)
	})
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(s.gw.heartbeat())
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(frame); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.String("sessionId", s.id))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.gw.cfg.WriteWait)); err != nil {
				return
			}
		case <-s.quit:
			s.flush()
			msg := websocket.FormatCloseMessage(s.closeCode, s.closeText)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.gw.cfg.WriteWait))
			return
		}
	}
}

func (s *session) flush() {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *session) write(frame []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.gw.cfg.WriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *session) finish() {
	s.closeWith(websocket.CloseNormalClosure, "")
	<-s.done
	s.cancel()
	s.gw.detach(s)
	s.gw.presence.Disconnect(s.id)
	telemetry.M().WSConnections.Add(context.Background(), -1)
	logger.Log.Info("WebSocket closed",
		zap.String("sessionId", s.id),
		zap.String("userId", s.user()),
		zap.Int("closeCode", s.closeCode),
	)
}
