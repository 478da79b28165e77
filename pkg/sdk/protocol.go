package sdk

import (
	"errors"
	"strings"
)

// Wire commands understood by the storage daemon. Every request and reply is a
// single line. Values travel as JSON strings so they never contain a newline.
const (
	CmdGet  = "GET"
	CmdSet  = "SET"
	CmdDel  = "DEL"
	CmdKeys = "KEYS"
	CmdPing = "PING"
	CmdQuit = "QUIT"

	ReplyOK   = "OK"
	ReplyErr  = "ERR"
	ReplyPong = "PONG"
)

var wireErrors = []error{ErrKeyNotFound, ErrQuotaExceeded, ErrInvalidKey}

// WireError renders err for an ERR reply. Known sentinels are sent bare so
// the client can map them back.
func WireError(err error) string {
	for _, sentinel := range wireErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// ParseWireError converts the message of an ERR reply back into an error,
// restoring the storage sentinels.
func ParseWireError(msg string) error {
	msg = strings.TrimSpace(msg)
	for _, sentinel := range wireErrors {
		if msg == sentinel.Error() {
			return sentinel
		}
	}
	return errors.New(msg)
}
