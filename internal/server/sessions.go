package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListSessions(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sessions, err := s.authsvc.Sessions(c.Request.Context(), access.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) RevokeSession(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.RevokeSession(c.Request.Context(), access.UserID, sessionID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
