package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"dashsync-go/internal/config"
	"dashsync-go/internal/constants"
	"dashsync-go/internal/dashboard"
	"dashsync-go/internal/realtime"
	"dashsync-go/internal/runtime"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ViewSource is the synchronizer as seen by the status surface.
type ViewSource interface {
	View() dashboard.View
	Running() bool
	Subscribe(fn func(dashboard.View)) func()
}

// ChannelSource reports push channel health.
type ChannelSource interface {
	State() realtime.State
	Stats() realtime.Stats
}

// SessionSource reports whether the agent holds a usable credential.
type SessionSource interface {
	Get(ctx context.Context) (string, bool)
	Expired() bool
}

// TaskSource reports supervised background tasks.
type TaskSource interface {
	GetStats() runtime.TaskStats
	ListTasks() []runtime.Task
}

// Dependencies encapsulates the runtime services exposed over HTTP. Channel
// and Tasks may be nil.
type Dependencies struct {
	Config  func() *config.Config
	View    ViewSource
	Channel ChannelSource
	Session SessionSource
	Tasks   TaskSource
}

// Server is the local status server.
type Server struct {
	httpSrv     *http.Server
	engine      *gin.Engine
	broadcaster *ViewBroadcaster
	unsubscribe func()
}

// New builds the engine and subscribes the view stream to deps.View.
func New(addr string, deps Dependencies) *Server {
	b := NewViewBroadcaster(constants.StreamMaxConnections)
	engine := BuildEngine(deps, b)
	s := &Server{
		engine:      engine,
		broadcaster: b,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	if deps.View != nil {
		b.Publish(deps.View.View())
		s.unsubscribe = deps.View.Subscribe(b.Publish)
	}
	return s
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Broadcaster returns the view stream hub.
func (s *Server) Broadcaster() *ViewBroadcaster { return s.broadcaster }

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", ln.Addr().String()).Info("status server listening")
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("status server stopped")
	return nil
}

// close detaches from the view and drops stream clients, which Shutdown
// does not track once hijacked.
func (s *Server) close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.broadcaster.Close()
}
