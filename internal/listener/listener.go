// Package listener owns the TCP accept loop. Each accepted connection is
// parsed as a single HTTP request by hand — rather than handed to
// http.Server — so that the work of serving it can be submitted to the
// worker pool as one task, keeping number_of_additional_threads a real
// bound on relay concurrency instead of a value nothing reads.
package listener

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/kamilrusin/fusion-relay/internal/config"
	"github.com/kamilrusin/fusion-relay/internal/hub"
	"github.com/kamilrusin/fusion-relay/internal/httpio"
	"github.com/kamilrusin/fusion-relay/internal/session"
	"github.com/kamilrusin/fusion-relay/internal/workerpool"
)

// Listener accepts TCP connections and dispatches each to the worker pool.
type Listener struct {
	cfg   config.Listener
	log   *zerolog.Logger
	reg   *hub.Registry
	pool  *workerpool.Pool
	route http.Handler

	ln net.Listener
}

// New constructs a Listener bound to cfg.Interface:cfg.Port. Binding
// happens in Serve, not here, so construction can never fail on its own.
func New(cfg config.Listener, log *zerolog.Logger, reg *hub.Registry, pool *workerpool.Pool) *Listener {
	return &Listener{
		cfg:   cfg,
		log:   log,
		reg:   reg,
		pool:  pool,
		route: httpio.NewRouter(log),
	}
}

// Serve binds the listening socket and accepts connections until ctx is
// canceled. The socket keeps the operating system's default accept backlog:
// cfg.MaxQueuedConnections is not applied here (the application sizes the
// worker pool's task queue from it instead). Every accepted connection is
// counted, and the running total is logged at debug level.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", l.cfg.Interface, l.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", l.cfg.Interface, l.cfg.Port, err)
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	l.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	var accepted uint64
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				l.log.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		accepted++
		l.log.Debug().Uint64("accepted", accepted).Str("remote", conn.RemoteAddr().String()).Msg("accepted connection")

		l.pool.Submit(func() {
			l.serveConn(ctx, conn)
		})
	}
}

// Addr returns the bound address. It must only be called after Serve has
// started.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Str("remote", conn.RemoteAddr().String()).Msg("connection handler panicked")
			conn.Close()
		}
	}()

	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
		conn.Close()
		return
	}

	rw := httpio.New(conn, reader)

	if isUpgradeRequest(req) {
		l.serveUpgrade(ctx, rw, req, conn)
		return
	}

	l.route.ServeHTTP(rw, req)
	if err := rw.Flush(); err != nil {
		l.log.Debug().Err(err).Msg("failed to flush http response")
	}
	conn.Close()
}

func isUpgradeRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade")
}

func (l *Listener) serveUpgrade(ctx context.Context, rw *httpio.ResponseWriter, req *http.Request, conn net.Conn) {
	wsConn, err := websocket.Accept(rw, req, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		l.log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("websocket upgrade failed")
		conn.Close()
		return
	}

	sess := session.New(wsConn, conn.RemoteAddr().String(), l.log, l.reg)
	sess.Run(ctx)
}
