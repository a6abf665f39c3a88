package response

import (
	"net/http"

	appErr "poker-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code      int         `json:"code"`
	Data      interface{} `json:"data"`
	Msg       string      `json:"msg"`
	ErrorCode string      `json:"errorCode,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusOK, data, msg)
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// AppError writes err using its taxonomy code and the matching HTTP status.
func AppError(c *gin.Context, err error) {
	e := appErr.As(err)
	status := StatusFor(e)
	msg := e.Error()
	if e.Kind == appErr.KindInternal {
		msg = appErr.ErrInternal.Message
	}
	c.JSON(status, Body{Code: status, Data: gin.H{}, Msg: msg, ErrorCode: e.Code})
}

func AbortWithError(c *gin.Context, err error) {
	AppError(c, err)
	c.Abort()
}

func StatusFor(e *appErr.AppError) int {
	switch e.Kind {
	case appErr.KindCommand, appErr.KindProtocol:
		return http.StatusBadRequest
	case appErr.KindAuth:
		return http.StatusUnauthorized
	case appErr.KindConcurrency:
		return http.StatusConflict
	case appErr.KindGame:
		if e.Code == appErr.ErrTableNotFound.Code {
			return http.StatusNotFound
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
