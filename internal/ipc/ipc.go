package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"

	"voxchat/internal/interrupt"
)

const SocketPath = "/tmp/voxchat.sock"

const CmdToggle = "toggle"

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

// Server accepts control messages on a unix socket. Toggle commands are
// routed like interrupts, so it can drive an interrupt trigger.
type Server struct {
	ln     net.Listener
	router *interrupt.Router
}

func Listen(path string) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{
		ln: ln,
		router: interrupt.NewRouter(func() {
			log.Warn("Toggle received while no recording is waiting")
		}),
	}
	go s.serve()

	return s, nil
}

func (s *Server) Claim() (<-chan struct{}, func()) {
	return s.router.Claim()
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		log.Debug("Bad control message", "err", err)
		return
	}

	switch msg.Cmd {
	case CmdToggle:
		s.router.Interrupt()
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
	}
}

func SendCommand(path, cmd string) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	return enc.Encode(ControlMessage{Cmd: cmd})
}
