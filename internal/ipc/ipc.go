package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// DefaultSocketPath is used when the config leaves the socket unset.
const DefaultSocketPath = "/tmp/aural.sock"

// ControlMessage is one command sent over the control socket.
type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// Reply is the daemon's answer to a control message.
type Reply struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler processes one control message and returns what to tell the caller.
type Handler func(msg ControlMessage) Reply

// Server accepts control messages on a unix socket.
type Server struct {
	path     string
	listener net.Listener
	logger   *slog.Logger
}

// StartServer binds the socket and serves until the context is cancelled. A
// stale socket from a previous run is removed first.
func StartServer(ctx context.Context, path string, handler Handler, logger *slog.Logger) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	s := &Server{path: path, listener: ln, logger: logger}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					logger.Warn("control socket accept failed", "error", err)
					continue
				}
			}
			go s.handleConn(conn, handler)
		}
	}()

	logger.Info("control socket listening", "path", path)
	return s, nil
}

func (s *Server) Close() error {
	err := s.listener.Close()
	os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.logger.Warn("bad control message", "error", err)
		return
	}

	s.logger.Debug("control message", "cmd", msg.Cmd, "arg", msg.Arg)

	reply := handler(msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		s.logger.Warn("writing control reply", "error", err)
	}
}

// SendCommand connects to a running daemon and sends one command.
func SendCommand(path, cmd, arg string) (Reply, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		return Reply{}, fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd, Arg: arg}); err != nil {
		return Reply{}, fmt.Errorf("sending command: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("reading reply: %w", err)
	}

	return reply, nil
}
