// Package httpserver wires the browser UI and the session control API.
package httpserver

import (
	"bytes"
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/live-demo/internal/config"
	appmw "github.com/chadiek/live-demo/internal/middleware"
	"github.com/chadiek/live-demo/internal/media"
	"github.com/chadiek/live-demo/internal/rtc"
	"github.com/chadiek/live-demo/internal/session"
)

//go:embed index.html
var indexHTML []byte

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the HTTP server with routes. rtcHandler is optional;
// when present the WebRTC signaling endpoints are mounted too.
func New(mgr *session.Manager, rtcHandler *rtc.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	cfg := mgr.Config()
	page := renderIndex(cfg)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, page)
	})

	ctl := e.Group("/session", appmw.ControlAuth(cfg.ControlPassword))
	ctl.POST("/start", func(c echo.Context) error {
		status, err := mgr.Start()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": status})
	})
	ctl.POST("/stop", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": mgr.Stop()})
	})
	ctl.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": mgr.Status()})
	})
	ctl.GET("/frame", func(c echo.Context) error {
		frame := mgr.LatestFrame()
		if frame == nil {
			return c.NoContent(http.StatusNoContent)
		}
		jpegBytes, err := media.EncodeJPEG(frame)
		if err != nil {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.Blob(http.StatusOK, media.MIMETypeJPEG, jpegBytes)
	})

	if rtcHandler != nil {
		e.POST("/rtc/offer", func(c echo.Context) error {
			var offer rtc.SessionDescription
			if err := c.Bind(&offer); err != nil {
				return c.NoContent(http.StatusBadRequest)
			}
			answer, err := rtcHandler.HandleOffer(c.Request().Context(), offer)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
			return c.JSON(http.StatusOK, answer)
		})
		e.GET("/rtc/ws", func(c echo.Context) error {
			rtcHandler.ServeWebSocket(c.Response(), c.Request(), cfg.ControlPassword)
			return nil
		})
	}

	return &Server{Router: e}
}

// renderIndex fills the page title from WEB_UI_TITLE when the settings
// files are readable; otherwise the page keeps a generic title.
func renderIndex(cfg config.Config) []byte {
	title := "Gemini Audio/Video Demo"
	if st, err := config.LoadSettings(cfg.ConfigPath, cfg.MediaPath); err == nil && st.WebUITitle != "" {
		title = st.WebUITitle
	}
	return bytes.ReplaceAll(indexHTML, []byte("{{TITLE}}"), []byte(title))
}
