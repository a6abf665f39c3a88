package api

import (
	"context"
	"net/http"
	"strings"

	"poker-service/internal/middleware"
	"poker-service/internal/service"
	"poker-service/internal/service/ledger"
	"poker-service/internal/service/poker"
	appErr "poker-service/pkg/errors"
	"poker-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := r.Group("/v1")
	{
		if gin.Mode() != gin.ReleaseMode {
			v1.POST("/auth/dev-token", handler.DevToken)
		}

		pokerGroup := v1.Group("/poker")
		pokerGroup.Use(middleware.AuthRequired(services.Signer))
		{
			pokerGroup.POST("/create-table", mutation(services.Poker.CreateTable))
			pokerGroup.POST("/join", mutation(services.Poker.Join))
			pokerGroup.POST("/leave", mutation(services.Poker.Leave))
			pokerGroup.POST("/act", mutation(services.Poker.Act))
			pokerGroup.POST("/start-hand", mutation(services.Poker.StartHand))
			pokerGroup.POST("/heartbeat", mutation(services.Poker.Heartbeat))
			pokerGroup.POST("/add-bot", mutation(services.Poker.AddBot))
			pokerGroup.GET("/get-table", handler.GetTable)
			pokerGroup.GET("/list-tables", handler.ListTables)
			pokerGroup.GET("/balance", handler.Balance)
		}
	}

	r.GET("/ws", services.Gateway.Handle)
}

// mutation adapts one action-authority entry point to a POST handler.
func mutation[T any](fn func(ctx context.Context, userID string, req T) (poker.MutationResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.AppError(c, appErr.ErrAuthRequired)
			return
		}
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			response.AppError(c, appErr.ErrInvalidCommand.WithMessage("%s", err.Error()))
			return
		}
		res, err := fn(c.Request.Context(), userID, req)
		if err != nil {
			response.AppError(c, err)
			return
		}
		response.Success(c, res)
	}
}

func (h *Handler) GetTable(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.AppError(c, appErr.ErrAuthRequired)
		return
	}
	resp, err := h.services.Poker.GetTable(c.Request.Context(), userID, strings.TrimSpace(c.Query("tableId")))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) ListTables(c *gin.Context) {
	response.Success(c, h.services.Poker.ListTables(c.Request.Context()))
}

func (h *Handler) Balance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.AppError(c, appErr.ErrAuthRequired)
		return
	}
	bal, err := h.services.Ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, bal)
}

type devTokenBody struct {
	UserID string `json:"userId" binding:"required"`
}

// DevToken issues a user token without any credential check. It is only
// routed outside release mode.
func (h *Handler) DevToken(c *gin.Context) {
	var body devTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.AppError(c, appErr.ErrInvalidCommand.WithMessage("%s", err.Error()))
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" || strings.HasPrefix(userID, ledger.BotPrefix) {
		response.AppError(c, appErr.ErrInvalidCommand.WithMessage("userId %q is not allowed", body.UserID))
		return
	}
	token, err := h.services.Signer.GenerateToken(userID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, gin.H{"userId": userID, "token": token})
}
