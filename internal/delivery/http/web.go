package http

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed web/index.html
var webFS embed.FS

// ServeUI serves the embedded single-page admin UI. The page is static; all
// state comes from the JSON API.
func ServeUI(c *gin.Context) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "admin UI not available")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
