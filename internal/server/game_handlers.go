package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"arena-server/internal/arena"
)

func (s *Server) dispatchGame(logger *slog.Logger, cmd Command) ([]byte, error) {
	switch cmd.Kind {
	case CmdStartUp:
		return s.handleStartUp(logger, cmd)
	case CmdUpdate:
		return s.handleUpdate(cmd)
	case CmdGameOver:
		return s.handleGameOver(logger)
	case CmdQuit:
		return s.handleMatchQuit(logger, cmd)
	default:
		return nil, fmt.Errorf("%w: %s during match", ErrUnknownCommand, cmd.Kind)
	}
}

func (s *Server) handleStartUp(logger *slog.Logger, cmd Command) ([]byte, error) {
	seat, err := cmd.Seat()
	if err != nil {
		return nil, err
	}
	view, err := s.arena.StartUp(seat)
	if err != nil {
		return nil, err
	}
	logger.Debug("player entered the match", "seat", seat)

	body, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return httpResponse(body), nil
}

func (s *Server) handleUpdate(cmd Command) ([]byte, error) {
	obj, damages, err := decodeUpdate(cmd.Value)
	if err != nil {
		return nil, err
	}
	view, err := s.arena.Update(obj, damages)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return httpResponse(body), nil
}

func (s *Server) handleGameOver(logger *slog.Logger) ([]byte, error) {
	if s.arena.EndMatch() {
		s.metrics.matchesFinished.Inc()
		logger.Info("Game Over")
	}
	return nil, nil
}

func (s *Server) handleMatchQuit(logger *slog.Logger, cmd Command) ([]byte, error) {
	seat, err := cmd.Seat()
	if err != nil {
		return nil, err
	}
	if err := s.arena.QuitMatch(seat); err != nil {
		return nil, err
	}
	logger.Info("player left the match", "seat", seat)
	return nil, nil
}

// decodeUpdate accepts either {"player": {...}, "damages": [...]} or the
// player object followed by the damages array.
func decodeUpdate(value string) (arena.GameObject, []arena.Damage, error) {
	dec := json.NewDecoder(strings.NewReader(value))

	var first json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return arena.GameObject{}, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var envelope struct {
		Player  json.RawMessage `json:"player"`
		Damages []arena.Damage  `json:"damages"`
	}
	if err := json.Unmarshal(first, &envelope); err == nil && len(envelope.Player) > 0 {
		var obj arena.GameObject
		if err := json.Unmarshal(envelope.Player, &obj); err != nil {
			return arena.GameObject{}, nil, fmt.Errorf("%w: player: %v", ErrDecode, err)
		}
		return obj, envelope.Damages, nil
	}

	var obj arena.GameObject
	if err := json.Unmarshal(first, &obj); err != nil {
		return arena.GameObject{}, nil, fmt.Errorf("%w: player: %v", ErrDecode, err)
	}
	var damages []arena.Damage
	if err := dec.Decode(&damages); err != nil && !errors.Is(err, io.EOF) {
		return arena.GameObject{}, nil, fmt.Errorf("%w: damages: %v", ErrDecode, err)
	}
	return obj, damages, nil
}

// httpResponse frames a match reply for the browser's fetch call.
func httpResponse(body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString("Content-Type: application/json\r\n")
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}
