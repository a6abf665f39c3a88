package ws

import (
	"context"
	"errors"
	"strings"

	"poker-service/internal/holdem"
	"poker-service/internal/presence"
	"poker-service/internal/protocol"
	appErr "poker-service/pkg/errors"

	"github.com/gorilla/websocket"
)

type handlerFunc func(ctx context.Context, s *session, env protocol.Envelope) error

// route is one entry of the dispatch table. Protected routes need a bound
// user.
type route struct {
	protected bool
	handle    handlerFunc
}

func (g *Gateway) buildRoutes() map[string]route {
	return map[string]route{
		protocol.TypeHello:         {handle: g.onHello},
		protocol.TypeAuth:          {handle: g.onAuth},
		protocol.TypeTableJoin:     {protected: true, handle: g.onTableJoin},
		protocol.TypeTableLeave:    {protected: true, handle: g.onTableLeave},
		protocol.TypeTableStateSub: {protected: true, handle: g.onStateSub},
		protocol.TypeResync:        {protected: true, handle: g.onResync},
		protocol.TypeProtectedEcho: {protected: true, handle: g.onEcho},
	}
}

func (g *Gateway) onHello(_ context.Context, s *session, env protocol.Envelope) error {
	var p protocol.Hello
	if err := env.Bind(&p); err != nil {
		return err
	}
	v, ok := protocol.Negotiate(p.SupportedVersions, g.cfg.SupportedVersions)
	if !ok {
		return &closeError{
			err:  appErr.ErrUnsupportedVersion.WithMessage("server supports %s", strings.Join(g.cfg.SupportedVersions, ",")),
			code: websocket.CloseProtocolError,
		}
	}
	s.setVersion(v)
	return s.reply(env.RequestID, protocol.TypeHelloAck, protocol.HelloAck{
		Version:     v,
		SessionID:   s.id,
		HeartbeatMs: g.cfg.HeartbeatMs,
	})
}

// onAuth answers authError rather than an error frame; the connection stays
// open for a retry.
func (g *Gateway) onAuth(_ context.Context, s *session, env protocol.Envelope) error {
	var p protocol.Auth
	if err := env.Bind(&p); err != nil {
		return err
	}
	token := strings.TrimSpace(p.Token)
	if token == "" {
		return s.reply(env.RequestID, protocol.TypeAuthError, protocol.AuthError{
			Code: appErr.ErrAuthRequired.Code, Message: "token is required",
		})
	}
	claims, err := g.verifier.ParseUserToken(token)
	if err != nil {
		return s.reply(env.RequestID, protocol.TypeAuthError, protocol.AuthError{
			Code: appErr.ErrAuthInvalid.Code, Message: appErr.ErrAuthInvalid.Message,
		})
	}
	if !s.bind(claims.UserID) {
		return s.reply(env.RequestID, protocol.TypeAuthError, protocol.AuthError{
			Code: appErr.ErrAuthInvalid.Code, Message: "session is bound to another user",
		})
	}
	return s.reply(env.RequestID, protocol.TypeAuthOk, protocol.AuthOk{UserID: claims.UserID, SessionID: s.id})
}

func tableRef(env protocol.Envelope) (string, error) {
	var ref protocol.TableRef
	if err := env.Bind(&ref); err != nil {
		return "", err
	}
	id := strings.TrimSpace(ref.TableID)
	if id == "" {
		return "", appErr.ErrInvalidCommand.WithMessage("tableId is required")
	}
	return id, nil
}

func (g *Gateway) onTableJoin(_ context.Context, s *session, env protocol.Envelope) error {
	tableID, err := tableRef(env)
	if err != nil {
		return err
	}
	st, _, err := g.presence.Join(tableID, s.user(), s.id)
	if err != nil {
		return err
	}
	return s.reply(env.RequestID, protocol.TypeTableState, st)
}

func (g *Gateway) onTableLeave(_ context.Context, s *session, env protocol.Envelope) error {
	tableID, err := tableRef(env)
	if err != nil {
		return err
	}
	st, err := g.presence.Leave(tableID, s.user())
	if err != nil {
		return err
	}
	return s.reply(env.RequestID, protocol.TypeTableState, st)
}

func (g *Gateway) onStateSub(_ context.Context, s *session, env protocol.Envelope) error {
	tableID, err := tableRef(env)
	if err != nil {
		return err
	}
	return s.reply(env.RequestID, protocol.TypeTableState, g.presence.Snapshot(tableID))
}

type resyncState struct {
	presence.TableState
	MyHoleCards []holdem.Card `json:"myHoleCards,omitempty"`
}

// onResync returns membership plus the authoritative game state, including
// the caller's own hole cards when seated.
func (g *Gateway) onResync(ctx context.Context, s *session, env protocol.Envelope) error {
	tableID, err := tableRef(env)
	if err != nil {
		return err
	}
	out := resyncState{TableState: g.presence.Snapshot(tableID)}
	if g.tables != nil {
		resp, err := g.tables.GetTable(ctx, s.user(), tableID)
		switch {
		case err == nil:
			v := resp.State.Version
			out.Version = &v
			out.State = resp.State
			out.MyHoleCards = resp.MyHoleCards
		case errors.Is(err, appErr.ErrTableNotFound):
			// presence-only table
		default:
			return err
		}
	}
	return s.reply(env.RequestID, protocol.TypeTableState, out)
}

func (g *Gateway) onEcho(_ context.Context, s *session, env protocol.Envelope) error {
	var payload map[string]any
	if err := env.Bind(&payload); err != nil {
		return err
	}
	return s.reply(env.RequestID, protocol.TypeProtectedEcho, protocol.Echo{UserID: s.user(), Payload: payload})
}
