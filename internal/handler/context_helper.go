package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gaon-dev/gaon-api/internal/middleware"
	"github.com/gaon-dev/gaon-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// dateQuery parses the optional ?date=YYYY-MM-DD query, defaulting to today
// in the given zone.
func dateQuery(c *gin.Context, location *time.Location) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		now := time.Now().In(location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed, nil
}
