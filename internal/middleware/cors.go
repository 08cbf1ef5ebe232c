package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMaxAge is how long browsers may cache the preflight response.
const corsMaxAge = 12 * time.Hour

// CORS allows the configured origins plus the custom headers the sync
// protocol rides on: the device identity, the rotating refresh token and
// the property-verification challenge.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"Installation-Id", "Refresh-Token", "Challenge-Response",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}
	return cors.New(cfg)
}
