package httpio

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter builds the plain-HTTP surface every non-upgrade request is
// served by: a canned body on "/" and 404 on everything else, per §6.
func NewRouter(log *zerolog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "FeelsBadMan\r\n")
	})
	r.NoRoute(func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	return r
}
