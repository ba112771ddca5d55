package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/registry"
)

var ErrDaemonRunning = errors.New("another vidown daemon is listening on the socket")

// Queue is the part of queue.Manager the server exposes.
type Queue interface {
	Enqueue(req model.Request) (model.Job, error)
	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
	Remove(id string) bool
	Retry(id string) (model.Job, error)
	Resolve(ref string) (model.Job, error)
	List() []model.Job
	Subscribe(ctx context.Context) <-chan *registry.Snapshot
}

type Server struct {
	queue    Queue
	path     string
	listener net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(q Queue, path string) *Server {
	return &Server{queue: q, path: path, conns: make(map[net.Conn]struct{})}
}

// Listen binds the socket. A stale socket file left by a dead daemon is
// replaced; a live one is an error.
func (s *Server) Listen() error {
	if _, err := os.Stat(s.path); err == nil {
		if conn, err := net.DialTimeout("unix", s.path, 500*time.Millisecond); err == nil {
			conn.Close()
			return ErrDaemonRunning
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("error removing stale socket: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("error creating socket directory: %v", err)
	}
	l, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("error listening on %s: %v", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		log.Warn().Str("op", "control/server").Err(err).Msg("could not restrict socket permissions")
	}
	s.listener = l
	log.Info().Str("op", "control/server").Str("socket", s.path).Msg("control socket listening")
	return nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("error accepting connection: %v", err)
		}
		setSocketOptions(conn)
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting, drops open connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		os.Remove(s.path)
	}
	s.wg.Wait()
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Str("op", "control/server").Err(err).Msg("dropping connection")
				enc.Encode(errorResponse(fmt.Errorf("malformed request: %v", err)))
			}
			return
		}
		log.Debug().Str("op", "control/server").Str("action", string(req.Action)).Str("job", req.ID).Msg("request")
		if req.Action == ActionWatch {
			s.watch(ctx, conn, enc)
			return
		}
		if err := enc.Encode(s.dispatch(req)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Action {
	case ActionAdd:
		if req.Request == nil {
			return errorResponse(errors.New("add needs a request"))
		}
		job, err := s.queue.Enqueue(*req.Request)
		if err != nil {
			return errorResponse(err)
		}
		return jobResponse(job)
	case ActionList:
		return Response{OK: true, Jobs: s.queue.List()}
	case ActionGet, ActionPause, ActionResume, ActionCancel, ActionRemove, ActionRetry:
	default:
		return errorResponse(fmt.Errorf("unknown action %q", req.Action))
	}

	job, err := s.queue.Resolve(req.ID)
	if err != nil {
		return errorResponse(err)
	}
	switch req.Action {
	case ActionPause:
		err = s.queue.Pause(job.ID)
	case ActionResume:
		err = s.queue.Resume(job.ID)
	case ActionCancel:
		err = s.queue.Cancel(job.ID)
	case ActionRemove:
		if !s.queue.Remove(job.ID) {
			err = registry.ErrNotFound
		}
		return resultFor(job, err)
	case ActionRetry:
		fresh, err := s.queue.Retry(job.ID)
		return resultFor(fresh, err)
	}
	if err != nil {
		return errorResponse(err)
	}
	if current, rerr := s.queue.Resolve(job.ID); rerr == nil {
		job = current
	}
	return jobResponse(job)
}

func resultFor(job model.Job, err error) Response {
	if err != nil {
		return errorResponse(err)
	}
	return jobResponse(job)
}

// watch streams snapshots until the client hangs up.
func (s *Server) watch(ctx context.Context, conn net.Conn, enc *json.Encoder) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()
	for snap := range s.queue.Subscribe(ctx) {
		if err := enc.Encode(Response{OK: true, Jobs: snap.Jobs, Version: snap.Version}); err != nil {
			return
		}
	}
}
