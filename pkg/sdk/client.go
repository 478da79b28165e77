// Package sdk provides the storage contract shared by every backend and the
// client-side library for the remote storage daemon.
package sdk

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-users/internal/logger"
)

const maxAttempts = 3

// ClientOptions configures a remote storage client.
type ClientOptions struct {
	// DisableTLS dials plain TCP instead of TLS.
	DisableTLS bool
	// Timeout bounds a single request round trip. Defaults to 30s.
	Timeout time.Duration
	Logger  logger.Logger
}

// Client is a remote Storage backed by the storage daemon.
type Client struct {
	addr   string
	opts   ClientOptions
	log    logger.Logger
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

var _ Storage = (*Client)(nil)

// Dial connects to a remote storage daemon, over TLS unless opts.DisableTLS
// is set.
func Dial(addr string, opts ClientOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	c := &Client{addr: addr, opts: opts, log: log.With("component", "sdk", "addr", addr)}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.opts.DisableTLS {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // Self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// roundTrip sends one command line and returns the payload of an OK reply.
// Transport failures are retried with a fresh connection; ERR replies are not.
func (c *Client) roundTrip(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < maxAttempts; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(c.opts.Timeout))

		var resp string
		if _, err = fmt.Fprint(c.conn, cmd+"\n"); err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				return parseReply(strings.TrimRight(resp, "\r\n"))
			}
		}

		c.log.Warn("request failed, reconnecting", "attempt", i+1, "error", err)
		if closeErr := c.reconnect(); closeErr != nil {
			c.log.Warn("reconnect failed", "error", closeErr)
		}

		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
}

func parseReply(line string) (string, error) {
	switch {
	case line == ReplyOK || line == ReplyPong:
		return "", nil
	case strings.HasPrefix(line, ReplyOK+" "):
		return line[len(ReplyOK)+1:], nil
	case line == ReplyErr:
		return "", ParseWireError("")
	case strings.HasPrefix(line, ReplyErr+" "):
		return "", ParseWireError(line[len(ReplyErr)+1:])
	default:
		return "", fmt.Errorf("unexpected reply %q", line)
	}
}

func (c *Client) GetItem(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	payload, err := c.roundTrip(CmdGet + " " + key)
	if err != nil {
		return "", err
	}
	var value string
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return "", fmt.Errorf("decode value for %s: %w", key, err)
	}
	return value, nil
}

func (c *Client) SetItem(key, value string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.roundTrip(CmdSet + " " + key + " " + string(encoded))
	return err
}

func (c *Client) RemoveItem(key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	_, err := c.roundTrip(CmdDel + " " + key)
	return err
}

func (c *Client) Keys() ([]string, error) {
	payload, err := c.roundTrip(CmdKeys)
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal([]byte(payload), &keys); err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	return keys, nil
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping() error {
	_, err := c.roundTrip(CmdPing)
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprint(c.conn, CmdQuit+"\n")
	err := c.conn.Close()
	c.conn = nil
	return err
}
