package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// registerProfiling mounts the pprof handlers and a memory stats dump under /debug.
func registerProfiling(r *gin.Engine) {
	debug := r.Group("/debug")
	debug.GET("/pprof/*profile", func(c *gin.Context) {
		switch name := strings.Trim(c.Param("profile"), "/"); name {
		case "":
			pprof.Index(c.Writer, c.Request)
		case "cmdline":
			pprof.Cmdline(c.Writer, c.Request)
		case "profile":
			pprof.Profile(c.Writer, c.Request)
		case "symbol":
			pprof.Symbol(c.Writer, c.Request)
		case "trace":
			pprof.Trace(c.Writer, c.Request)
		default:
			pprof.Handler(name).ServeHTTP(c.Writer, c.Request)
		}
	})
	debug.GET("/mem/stat", func(c *gin.Context) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		c.JSON(http.StatusOK, ms)
	})
}
