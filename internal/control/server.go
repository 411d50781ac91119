// Package control implements the line-oriented socket protocol used by the
// visualisation client.
//
// A client sends one command per line; lines end with '\n' or an EOT byte
// (0x04). Recognised commands:
//
//	start          start the simulation (only the first call has an effect)
//	send_data N    stream frame N, followed by EOT; "NO_DATA" + EOT if absent
//	out            reply "exit" and shut the process down
//
// The client farewell "I'LL BE BACK" closes the connection. Anything else is
// ignored.
package control

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/talgya/epiworld/internal/engine"
	"github.com/talgya/epiworld/internal/metrics"
	"github.com/talgya/epiworld/internal/persistence"
)

// Protocol constants.
const (
	EOT       byte = 0x04
	Farewell       = "I'LL BE BACK"
	NoData         = "NO_DATA"
	ChunkSize      = 4096
	MaxLine        = 2048
)

// Server accepts control connections.
type Server struct {
	Addr     string
	FrameDir string

	// Launch starts the engine. Shared with the HTTP API so only one
	// start ever takes effect.
	Launch func() error

	// Shutdown is called once when a client sends "out".
	Shutdown func()

	WriteTimeout time.Duration // 0 = no deadline

	frames       singleflight.Group
	shutdownOnce sync.Once

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// ListenAndServe listens on Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and every open connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("control server listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.closeAll()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				slog.Info("control server stopped")
				return nil
			}
			s.wg.Wait()
			return fmt.Errorf("control accept: %w", err)
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handle(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	if open {
		if s.closed {
			conn.Close()
		}
		s.conns[conn] = struct{}{}
		metrics.RecordConnection(1)
		return
	}
	delete(s.conns, conn)
	metrics.RecordConnection(-1)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
}

// handle runs the command loop of one connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	slog.Info("control client connected", "remote", remote)

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 256), MaxLine)
	sc.Split(ScanCommands)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == Farewell {
			slog.Info("control client said goodbye", "remote", remote)
			return
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "start":
			metrics.RecordCommand(cmd)
			s.start(remote)
		case "send_data":
			metrics.RecordCommand(cmd)
			if err := s.sendData(conn, args); err != nil {
				slog.Warn("send_data failed", "remote", remote, "error", err)
				return
			}
		case "out":
			metrics.RecordCommand(cmd)
			s.write(conn, []byte("exit"))
			slog.Info("shutdown requested by control client", "remote", remote)
			s.shutdownOnce.Do(func() {
				if s.Shutdown != nil {
					s.Shutdown()
				}
			})
			return
		default:
			metrics.RecordCommand("unknown")
			slog.Debug("ignoring control message", "remote", remote, "line", line)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Warn("control connection error", "remote", remote, "error", err)
	}
	slog.Info("control client disconnected", "remote", remote)
}

func (s *Server) start(remote string) {
	if s.Launch == nil {
		slog.Warn("start requested but no engine is wired", "remote", remote)
		return
	}
	if err := s.Launch(); err != nil {
		if errors.Is(err, engine.ErrAlreadyStarted) {
			slog.Info("start ignored, simulation already running", "remote", remote)
			return
		}
		slog.Error("engine start failed", "remote", remote, "error", err)
		return
	}
	slog.Info("simulation started by control client", "remote", remote)
}

// sendData streams frame args[0] in ChunkSize pieces followed by EOT.
func (s *Server) sendData(conn net.Conn, args []string) error {
	data, err := s.frame(args)
	if err != nil {
		if !errors.Is(err, persistence.ErrNoFrame) {
			slog.Warn("frame unavailable", "args", args, "error", err)
		}
		return s.write(conn, append([]byte(NoData), EOT))
	}
	for len(data) > 0 {
		n := min(len(data), ChunkSize)
		if err := s.write(conn, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return s.write(conn, []byte{EOT})
}

// frame reads the requested frame; concurrent requests for the same frame
// share one read.
func (s *Server) frame(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no frame number", persistence.ErrNoFrame)
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("frame number %q: %w", args[0], err)
	}
	v, err, _ := s.frames.Do(strconv.FormatUint(n, 10), func() (any, error) {
		return persistence.ReadFrame(s.FrameDir, uint32(n))
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Server) write(conn net.Conn, p []byte) error {
	if s.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	_, err := conn.Write(p)
	return err
}

// ScanCommands is a bufio.SplitFunc that yields lines terminated by '\n'
// or EOT, with a trailing '\r' dropped. A final unterminated line is
// returned at EOF.
func ScanCommands(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\n\x04"); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}
