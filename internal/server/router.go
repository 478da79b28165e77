// Package server exposes a Storage over the line-based TCP protocol.
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

const (
	maxConnections = 100
	connLifetime   = 5 * time.Minute
	idleTimeout    = 30 * time.Second
)

type Router struct {
	store sdk.Storage
	cert  *tls.Certificate
	log   logger.Logger

	// maxConns bounds the connections accepted at once
	maxConns int

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	active   map[net.Conn]struct{}
	conns    sync.WaitGroup
}

func NewRouter(s sdk.Storage, log logger.Logger) *Router {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Router{
		store:    s,
		log:      log.With("component", "tcp"),
		maxConns: maxConnections,
		active:   make(map[net.Conn]struct{}),
	}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound listener address, or nil before Listen.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called. It returns
// right away when Stop ran first.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return listener.Close()
	}
	r.listener = listener
	r.mu.Unlock()
	r.log.Info("tcp storage server listening", "addr", listener.Addr().String(), "tls", r.cert != nil)

	semaphore := make(chan struct{}, r.maxConns)

	for {
		// A slot is taken before Accept so excess clients wait in the backlog
		semaphore <- struct{}{}
		conn, err := listener.Accept()
		if err != nil {
			<-semaphore
			if errors.Is(err, net.ErrClosed) {
				r.conns.Wait()
				return nil
			}
			r.log.Warn("accept failed", "error", err)
			continue
		}

		// Hard cap on a single connection's lifetime
		conn.SetDeadline(time.Now().Add(connLifetime))

		if !r.track(conn) {
			<-semaphore
			conn.Close()
			continue
		}
		r.conns.Add(1)
		go func(c net.Conn) {
			defer r.conns.Done()
			defer func() {
				r.untrack(c)
				c.Close()
				<-semaphore
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// track registers an accepted connection. It reports false once Stop ran.
func (r *Router) track(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.active[c] = struct{}{}
	return true
}

func (r *Router) untrack(c net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, c)
}

// Stop closes the listener and every open connection. Listen returns once
// the connection handlers have exited.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for c := range r.active {
		c.Close()
	}
	if r.listener == nil {
		return nil
	}
	err := r.listener.Close()
	r.listener = nil
	return err
}

// HandleConnection serves commands from conn until QUIT, EOF or an idle timeout.
func (r *Router) HandleConnection(conn net.Conn) {
	log := r.log.With("conn", uuid.NewString())
	log.Debug("connection opened", "remote", conn.RemoteAddr().String())
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("connection closed", "error", err)
			}
			return
		}

		reply, quit := r.Dispatch(line)
		if quit {
			return
		}
		if reply == "" {
			continue
		}
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}
}

// Dispatch executes one command line and returns the reply line. Blank
// lines produce no reply.
func (r *Router) Dispatch(line string) (reply string, quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	// The value of SET is a JSON string and may contain spaces
	parts := strings.SplitN(line, " ", 3)
	command := strings.ToUpper(parts[0])
	args := parts[1:]

	switch command {
	case sdk.CmdGet:
		if len(args) != 1 {
			return usage(command, "<key>"), false
		}
		val, err := r.store.GetItem(args[0])
		if err != nil {
			return errReply(err), false
		}
		return okJSON(val), false

	case sdk.CmdSet:
		if len(args) != 2 {
			return usage(command, "<key> <json-string>"), false
		}
		var val string
		if err := json.Unmarshal([]byte(args[1]), &val); err != nil {
			return sdk.ReplyErr + " value must be a JSON string", false
		}
		if err := r.store.SetItem(args[0], val); err != nil {
			return errReply(err), false
		}
		return sdk.ReplyOK, false

	case sdk.CmdDel:
		if len(args) != 1 {
			return usage(command, "<key>"), false
		}
		if err := r.store.RemoveItem(args[0]); err != nil {
			return errReply(err), false
		}
		return sdk.ReplyOK, false

	case sdk.CmdKeys:
		keys, err := r.store.Keys()
		if err != nil {
			return errReply(err), false
		}
		if keys == nil {
			keys = []string{}
		}
		return okJSON(keys), false

	case sdk.CmdPing:
		return sdk.ReplyPong, false

	case sdk.CmdQuit:
		return "", true
	}

	return fmt.Sprintf("%s unknown command %s", sdk.ReplyErr, command), false
}

func usage(command, args string) string {
	return fmt.Sprintf("%s usage: %s %s", sdk.ReplyErr, command, args)
}

func errReply(err error) string {
	return sdk.ReplyErr + " " + sdk.WireError(err)
}

func okJSON(v any) string {
	res, err := json.Marshal(v)
	if err != nil {
		return sdk.ReplyErr + " internal error"
	}
	return sdk.ReplyOK + " " + string(res)
}
