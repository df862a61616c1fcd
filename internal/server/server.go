package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

// Dispatcher is the presence core as seen by the transport.
type Dispatcher interface {
	Connect(ctx context.Context, connectionID string) error
	Handle(ctx context.Context, connectionID string, ev presence.Event) (*presence.Ack, error)
	Disconnect(ctx context.Context, connectionID string) error
	Snapshot(ctx context.Context) (presence.Snapshot, error)
	History(ctx context.Context, n int) ([]presence.Message, error)
}

// App wires the hub, the dispatcher and the HTTP server together.
type App struct {
	cfg        Config
	log        *slog.Logger
	hub        *Hub
	dispatcher *presence.Dispatcher
	httpServer *http.Server

	stopDispatcher context.CancelFunc
}

// NewApp applies cfg as the active configuration and builds the components.
// Nothing runs until Start.
func NewApp(cfg *Config, log *slog.Logger) *App {
	SetConfig(cfg)
	active := currentConfig()

	hub := NewHub(log.With("component", "hub"), active.DeliveryQueueSize)
	dispatcher := presence.NewDispatcher(log.With("component", "dispatcher"), hub, active.PresenceOptions())

	app := &App{
		cfg:        active,
		log:        log,
		hub:        hub,
		dispatcher: dispatcher,
	}
	app.httpServer = CreateServer(active.Port, app.Handler())
	return app
}

// Hub returns the fan-out hub.
func (a *App) Hub() *Hub {
	return a.hub
}

// Dispatcher returns the presence dispatcher.
func (a *App) Dispatcher() *presence.Dispatcher {
	return a.dispatcher
}

// HTTPServer returns the HTTP server serving Handler.
func (a *App) HTTPServer() *http.Server {
	return a.httpServer
}

// Handler returns the application routes.
func (a *App) Handler() http.Handler {
	return SetupRoutes(a.hub, a.dispatcher)
}

// Start runs the hub and the dispatcher loops in the background.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopDispatcher = cancel

	go a.hub.Run()
	go a.dispatcher.Run(ctx)
	a.log.Info("Hub and dispatcher started")
}

// ListenAndServe serves HTTP until the server is shut down.
func (a *App) ListenAndServe() error {
	if err := StartServer(a.httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every connection and finally
// stops the dispatcher. Connections are disconnected through the dispatcher
// while it is still running.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := ShutdownServer(a.httpServer, a.timeout(ctx)); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.ShutdownHub(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.ShutdownDispatcher(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ShutdownHub closes every client connection and waits for the pumps.
func (a *App) ShutdownHub(ctx context.Context) error {
	if err := a.hub.Shutdown(a.timeout(ctx)); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	return nil
}

// ShutdownDispatcher stops the dispatcher loop and waits for it to return.
func (a *App) ShutdownDispatcher(ctx context.Context) error {
	if a.stopDispatcher == nil {
		return nil
	}
	a.stopDispatcher()

	select {
	case <-a.dispatcher.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher: %w", ctx.Err())
	}
}

func (a *App) timeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return a.cfg.ShutdownTimeout
}
