package api

import (
	"embed"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// Embedded status page assets.
//
// The page is a single self-contained HTML file that polls /api/v1/stats
// and renders the counters client-side, so no template rendering happens
// on the server.
//
//go:embed static
var embeddedStatus embed.FS

func statusFileSystem() static.ServeFileSystem {
	fs, err := static.EmbedFolder(embeddedStatus, "static")
	if err != nil {
		panic("failed to get embedded status page filesystem: " + err.Error())
	}
	return fs
}

// MountStatusPage serves the built-in status page at the root path.
// API and swagger routes keep priority; other unmatched paths fall back
// to index.html.
func MountStatusPage(r *gin.Engine, logger *slog.Logger) {
	fs := statusFileSystem()
	r.Use(static.Serve("/", fs))

	r.NoRoute(func(c *gin.Context) {
		uri := c.Request.RequestURI
		if strings.HasPrefix(uri, "/api") || strings.HasPrefix(uri, "/swagger") {
			return
		}
		index, err := fs.Open("index.html")
		if err != nil {
			if logger != nil {
				logger.Error("failed to open index.html", "error", err)
			}
			c.Status(http.StatusInternalServerError)
			return
		}
		defer index.Close()
		stat, _ := index.Stat()
		http.ServeContent(c.Writer, c.Request, "index.html", stat.ModTime(), index)
	})
}
