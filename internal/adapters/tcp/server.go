package tcp

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/core"
)

// ConnHandler owns a connection until Serve returns.
type ConnHandler interface {
	Serve(ctx context.Context, conn core.FrameConn)
}

type Server struct {
	Addr         string
	Handler      ConnHandler
	MaxFrameSize int
}

// ListenAndServe accepts connections until ctx is done, then waits for the
// open connections to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Info().Str("module", "tcp").Str("addr", ln.Addr().String()).Msg("listening")
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error().Err(err).Str("module", "tcp").Msg("accept")
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Handler.Serve(ctx, NewConn(conn, s.MaxFrameSize))
		}()
	}
}
