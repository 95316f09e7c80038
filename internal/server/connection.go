package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"arena-server/internal/arena"
)

// serveConn handles exactly one command on conn with the handler table of
// the phase the connection was accepted in. The connection is always closed.
func (s *Server) serveConn(conn net.Conn, phase arena.Phase) {
	defer s.workers.Done()
	defer conn.Close()

	connectionID := uuid.New().String()
	logger := s.logger.With("conn", connectionID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection handler panicked", "panic", r)
		}
	}()

	limit, timeout := s.cfg.LobbyReadLimit, s.cfg.LobbyTimeout
	if phase == arena.PhaseInGame {
		limit, timeout = s.cfg.GameReadLimit, s.cfg.GameTimeout
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		logger.Debug("set deadline", "err", err)
		return
	}

	raw, err := readRequest(conn, limit)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			s.metrics.timeouts.Inc()
			logger.Warn("connection timed out", "remote", conn.RemoteAddr().String())
			return
		}
		logger.Debug("read failed", "err", err)
		return
	}

	cmd, err := ParseCommand(raw)
	if err != nil {
		s.reject(logger, err)
		return
	}

	var reply []byte
	switch phase {
	case arena.PhaseLobby:
		reply, err = s.dispatchLobby(logger, cmd)
	case arena.PhaseInGame:
		reply, err = s.dispatchGame(logger, cmd)
	default:
		err = ErrUnknownCommand
	}
	if err != nil {
		s.reject(logger, err)
		return
	}
	s.metrics.commands.WithLabelValues(phase.String(), cmd.Kind.String()).Inc()

	if len(reply) == 0 {
		return
	}
	if _, err := conn.Write(reply); err != nil {
		logger.Debug("write reply", "command", cmd.Kind.String(), "err", err)
	}
}

// readRequest reads until the command is complete or limit bytes arrived.
func readRequest(r io.Reader, limit int) ([]byte, error) {
	buf := make([]byte, 0, limit)
	chunk := make([]byte, limit)
	for {
		n, err := r.Read(chunk[:limit-len(buf)])
		buf = append(buf, chunk[:n]...)
		if len(buf) >= limit || (len(buf) > 0 && requestComplete(buf)) {
			return buf, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return buf, err
		}
	}
}

// reject logs a request that gets no reply. Malformed input is only
// interesting at debug level; rule violations are worth seeing.
func (s *Server) reject(logger *slog.Logger, err error) {
	reason := rejectReason(err)
	s.metrics.rejected.WithLabelValues(reason).Inc()

	switch reason {
	case "protocol", "unknown_command", "bad_seat":
		logger.Debug("request ignored", "err", err)
	default:
		logger.Warn("request rejected", "err", err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrBadSeat):
		return "bad_seat"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, arena.ErrSparseID):
		return "sparse_id"
	case errors.Is(err, arena.ErrCannotStartUp):
		return "cannot_start_up"
	case errors.Is(err, arena.ErrSeatEmpty), errors.Is(err, arena.ErrInvalidSeat):
		return "seat"
	case errors.Is(err, arena.ErrWrongPhase):
		return "wrong_phase"
	default:
		return "other"
	}
}
