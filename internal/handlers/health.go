package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/database"
	appErrors "github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/response"
)

// Health reports readiness. The database is pinged when db is non-nil.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := database.Ping(db); err != nil {
				response.Error(c, appErrors.ErrServiceUnavailable.WithInternal(err))
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
