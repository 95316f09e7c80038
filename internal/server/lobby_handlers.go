package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"arena-server/internal/arena"
)

const (
	replyIncorrect = "incorrect"
	replyLobbyFull = "lobby full"
	replyRejoin    = "rejoin"
)

func (s *Server) dispatchLobby(logger *slog.Logger, cmd Command) ([]byte, error) {
	switch cmd.Kind {
	case CmdJoin:
		return s.handleJoin(logger, cmd)
	case CmdQuery:
		return s.handleQuery(cmd)
	case CmdToken:
		return s.handleToken(cmd)
	case CmdQuit:
		return s.handleLobbyQuit(logger, cmd)
	case CmdStart:
		return s.handleStart(logger, cmd)
	default:
		return nil, fmt.Errorf("%w: %s during lobby", ErrUnknownCommand, cmd.Kind)
	}
}

func (s *Server) handleJoin(logger *slog.Logger, cmd Command) ([]byte, error) {
	username, password, ok := strings.Cut(cmd.Value, ";")
	if !ok {
		return nil, fmt.Errorf("%w: join needs username;password", ErrProtocol)
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrProtocol)
	}

	res, err := s.arena.Join(username, password)
	switch {
	case errors.Is(err, arena.ErrLobbyFull):
		logger.Info(fmt.Sprintf("%s was turned away, lobby full", username))
		return []byte(replyLobbyFull), nil
	case errors.Is(err, arena.ErrIncorrectPassword):
		logger.Info(fmt.Sprintf("%s gave an incorrect password", username))
		return []byte(replyIncorrect), nil
	case err != nil:
		return nil, err
	}

	logger.Info(fmt.Sprintf("%s has joined the lobby", res.UserName), "seat", res.Seat)
	return []byte(fmt.Sprintf("joined=%d;%s", res.Seat, res.Token)), nil
}

func (s *Server) handleQuery(cmd Command) ([]byte, error) {
	seat, err := cmd.Seat()
	if err != nil {
		return nil, err
	}
	view, err := s.arena.Query(seat)
	if err != nil {
		return nil, err
	}
	return json.Marshal(view)
}

func (s *Server) handleToken(cmd Command) ([]byte, error) {
	seat, err := cmd.Seat()
	if err != nil {
		return nil, err
	}
	token, err := s.arena.Token(seat)
	if errors.Is(err, arena.ErrSeatEmpty) || errors.Is(err, arena.ErrInvalidSeat) {
		return []byte(replyRejoin), nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(token), nil
}

func (s *Server) handleLobbyQuit(logger *slog.Logger, cmd Command) ([]byte, error) {
	seat, err := cmd.Seat()
	if err != nil {
		return nil, err
	}
	name, err := s.arena.Quit(seat)
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("%s has left the lobby", name), "seat", seat)
	return nil, nil
}

func (s *Server) handleStart(logger *slog.Logger, cmd Command) ([]byte, error) {
	seat, err := cmd.Seat()
	if err != nil {
		return nil, err
	}
	ready, started, err := s.arena.Start(seat)
	if err != nil {
		return nil, err
	}
	if started {
		logger.Info("All players ready")
	}
	return json.Marshal(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}
