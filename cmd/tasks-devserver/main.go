// Command tasks-devserver serves an in-memory task server for trying the
// CLI against a real HTTP endpoint. Nothing is persisted.
package main

import (
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"task-sync/internal/remote"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	var opts []remote.MemoryOption
	if token := os.Getenv("TASKS_TOKEN"); token != "" {
		opts = append(opts, remote.WithBearerToken(token))
	}
	server := remote.NewMemoryServer(opts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("request")
			return nil
		},
	}))
	server.Register(e)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("TASKS_DEVSERVER_PORT"); ok {
		listenAddr = ":" + val
	}
	log.WithField("addr", listenAddr).Info("serving in-memory task server")
	e.Logger.Fatal(e.Start(listenAddr))
}
