package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"arena-server/internal/arena"
)

const (
	// BroadcastProbe is the exact datagram a client sends to find servers.
	BroadcastProbe = "arena_broadcast_req"

	broadcastPoll = time.Second
)

// Advertisement is the discovery reply.
type Advertisement struct {
	Port int              `json:"port"`
	Data AdvertisementData `json:"data"`
}

type AdvertisementData struct {
	Players  [arena.MaxPlayers]*arena.Player `json:"players"`
	Password bool                            `json:"password"`
}

// Broadcaster answers discovery probes while the arena is in its lobby.
type Broadcaster struct {
	arena    *arena.Arena
	host     string
	port     int
	tcpPort  int
	logger   *slog.Logger
	metrics  *Metrics
	callback CallbackFunc

	mu     sync.Mutex
	conn   net.PacketConn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBroadcaster(a *arena.Arena, host string, port, tcpPort int, logger *slog.Logger, metrics *Metrics, callback CallbackFunc) *Broadcaster {
	return &Broadcaster{
		arena:    a,
		host:     host,
		port:     port,
		tcpPort:  tcpPort,
		logger:   logger,
		metrics:  metrics,
		callback: callback,
	}
}

// Start binds the discovery socket and serves probes in the background.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}

	lc := net.ListenConfig{Control: socketControl(true)}
	addr := net.JoinHostPort(b.host, fmt.Sprint(b.port))
	conn, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return fmt.Errorf("BIND_FAILED: %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.conn = conn
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(ctx, conn)
	return nil
}

// Stop ends the responder and waits for it to exit.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	cancel, done, conn := b.cancel, b.done, b.conn
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	// wake a blocked read
	_ = conn.SetReadDeadline(time.Now())
	<-done
}

func (b *Broadcaster) LocalAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

func (b *Broadcaster) run(ctx context.Context, conn net.PacketConn) {
	defer close(b.done)
	defer func() {
		conn.Close()
		b.logger.Info("Broadcast service closing")
		b.callback(TagBroadcast)
	}()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("broadcast responder panicked", "panic", r)
		}
	}()

	buf := make([]byte, 1024)
	for ctx.Err() == nil && b.arena.Phase() == arena.PhaseLobby {
		if err := conn.SetReadDeadline(time.Now().Add(broadcastPoll)); err != nil {
			b.logger.Error("broadcast deadline", "err", err)
			return
		}
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() == nil {
				b.logger.Error("broadcast read", "err", err)
			}
			return
		}
		if string(buf[:n]) != BroadcastProbe {
			continue
		}
		// the match may have started while the read was blocked
		if ctx.Err() != nil || b.arena.Phase() != arena.PhaseLobby {
			return
		}
		b.reply(conn, from)
	}
}

func (b *Broadcaster) reply(conn net.PacketConn, to net.Addr) {
	payload, err := json.Marshal(Advertisement{
		Port: b.tcpPort,
		Data: AdvertisementData{
			Players:  b.arena.Seats(),
			Password: b.arena.HasPassword(),
		},
	})
	if err != nil {
		b.logger.Error("encode advertisement", "err", err)
		return
	}
	if _, err := conn.WriteTo(payload, to); err != nil {
		b.logger.Debug("advertisement not sent", "to", to.String(), "err", err)
		return
	}
	if b.metrics != nil {
		b.metrics.probes.Inc()
	}
}
