package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teamchat/internal/middleware"
	appErrors "github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireUserID returns the authenticated user id or writes a 401.
func requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

// pathParam returns a trimmed path parameter or writes a 400 naming it.
func pathParam(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		response.Error(c, appErrors.NewBadRequest(name+" is required"))
		return "", false
	}
	return value, true
}
