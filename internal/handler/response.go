package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ecoreports/internal/middleware"
	"ecoreports/internal/service"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// respondError writes the standard error body for err.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		middleware.Abort(c, http.StatusRequestTimeout, "REQUEST_TIMEOUT", "la solicitud tardó demasiado")
		return
	}
	se := service.AsError(err, "recurso")
	status := se.Status()
	if status >= 500 {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"code":   se.Code,
		}).Error("request failed")
	}
	middleware.Abort(c, status, se.Code, se.Message)
}

func badRequest(c *gin.Context, msg string) {
	middleware.Abort(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "id inválido")
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func actor(c *gin.Context) service.Actor {
	role, _ := middleware.GetRole(c)
	return service.Actor{ID: middleware.GetUserID(c), Role: role}
}
