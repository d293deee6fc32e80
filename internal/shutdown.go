package internal

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
)

// GracefulShutdown serves until SIGINT/SIGTERM, then runs cleanup (bounded by
// timeout) before stopping the HTTP server. A clean stop exits normally so
// the service manager can tell it apart from a crash.
func GracefulShutdown(
	e *echo.Echo,
	port string,
	timeout time.Duration,
	cleanup func(ctx context.Context),
) {
	go func() {
		if err := e.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("fatal error starting server: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if cleanup != nil {
		cleanup(shutdownCtx)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Println("err shutting down server: ", err)
	}
}
