package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"arena-server/internal/arena"
)

// CallbackFunc is told when a long-running part of the server has finished.
type CallbackFunc func(tag string)

const (
	TagGame      = "game"
	TagBroadcast = "broadcast"
)

type Config struct {
	Host          string
	Port          int
	Password      string
	BroadcastPort int // negative disables discovery
	StatsDir      string
	SweepInterval time.Duration

	LobbyTimeout   time.Duration
	GameTimeout    time.Duration
	LobbyReadLimit int
	GameReadLimit  int
	AcceptPoll     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Port:           44444,
		BroadcastPort:  44445,
		StatsDir:       "./stats",
		SweepInterval:  5 * time.Second,
		LobbyTimeout:   5 * time.Second,
		GameTimeout:    10 * time.Second,
		LobbyReadLimit: 256,
		GameReadLimit:  4096,
		AcceptPoll:     50 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultConfig. Port and BroadcastPort
// are left alone since 0 asks the OS for a free port.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StatsDir == "" {
		c.StatsDir = d.StatsDir
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.LobbyTimeout <= 0 {
		c.LobbyTimeout = d.LobbyTimeout
	}
	if c.GameTimeout <= 0 {
		c.GameTimeout = d.GameTimeout
	}
	if c.LobbyReadLimit <= 0 {
		c.LobbyReadLimit = d.LobbyReadLimit
	}
	if c.GameReadLimit <= 0 {
		c.GameReadLimit = d.GameReadLimit
	}
	if c.AcceptPoll <= 0 {
		c.AcceptPoll = d.AcceptPoll
	}
	return c
}

type Option func(*Server)

// WithArenaOptions passes options through to the arena, e.g. a seeded rand.
func WithArenaOptions(opts ...arena.Option) Option {
	return func(s *Server) {
		s.arenaOpts = append(s.arenaOpts, opts...)
	}
}

// WithStatsSinks adds destinations that receive every stats file after it
// has been written to disk.
func WithStatsSinks(sinks ...StatsSink) Option {
	return func(s *Server) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithLogLevel sets the minimum level passed to the log sink.
func WithLogLevel(level slog.Leveler) Option {
	return func(s *Server) {
		s.level = level
	}
}

type Server struct {
	cfg      Config
	arena    *arena.Arena
	logger   *slog.Logger
	callback CallbackFunc
	metrics  *Metrics
	stats    *StatsWriter
	listener *net.TCPListener

	arenaOpts []arena.Option
	sinks     []StatsSink
	level     slog.Leveler

	mu          sync.Mutex
	monitor     *Monitor
	broadcaster *Broadcaster

	workers   sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New binds the game socket and prepares the arena. Nothing is served until
// Listen is called. A bind failure is the only fatal error.
func New(cfg Config, log LogFunc, callback CallbackFunc, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg.withDefaults(),
		callback: callback,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.callback == nil {
		s.callback = func(string) {}
	}

	s.logger = NewLogger(log, s.level)
	s.arena = arena.New(append([]arena.Option{arena.WithPassword(s.cfg.Password)}, s.arenaOpts...)...)
	s.metrics = NewMetrics(s.arena)
	s.stats = NewStatsWriter(s.cfg.StatsDir, s.logger, s.metrics, s.sinks...)

	lc := net.ListenConfig{Control: socketControl(false)}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("BIND_FAILED: %s: %w", addr, err)
	}
	s.listener = ln.(*net.TCPListener)
	return s, nil
}

// Listen runs the lobby and then the match until the match ends or the
// server is closed. The "game" callback fires on every exit path.
func (s *Server) Listen() {
	defer s.callback(TagGame)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener stopped", "panic", r)
		}
	}()

	s.logger.Info(fmt.Sprintf("Server starting up at %s", s.Addr()))
	s.logger.Info(fmt.Sprintf("Password Protected: %t", s.arena.HasPassword()))

	s.startBroadcaster()
	s.restartMonitor()
	s.logger.Info("Lobby Open")

	s.acceptLoop(arena.PhaseLobby)
	if s.closed.Load() {
		return
	}

	s.stopBroadcaster()
	s.restartMonitor()
	s.logger.Info("Game Starting")
	started := time.Now()

	s.acceptLoop(arena.PhaseInGame)
	s.stopMonitor()
	if s.closed.Load() || s.arena.Phase() != arena.PhaseGameOver {
		return
	}

	// let in-flight updates land before the result is read
	s.workers.Wait()

	s.logger.Info("Generating statsfile")
	summary := s.arena.Summary(started, time.Now())
	if _, err := s.stats.Write(context.Background(), summary); err != nil {
		s.logger.Error("stats file not written", "err", err)
	}
}

func (s *Server) acceptLoop(phase arena.Phase) {
	for !s.closed.Load() && s.arena.Phase() == phase {
		if err := s.listener.SetDeadline(time.Now().Add(s.cfg.AcceptPoll)); err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Error("accept deadline", "err", err)
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "err", err)
			continue
		}
		s.workers.Add(1)
		go s.serveConn(conn, phase)
	}
}

// Close stops the server from any phase. It is safe to call more than once
// and from any goroutine.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.logger.Info("Server Closing")
		s.arena.Close()
		s.stopBroadcaster()
		s.stopMonitor()
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("closing listener", "err", err)
		}
	})
}

// InGame reports whether a match is in progress. The control panel refuses
// to close while it is.
func (s *Server) InGame() bool {
	return s.arena.InGame()
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port is the bound TCP port, which discovery replies advertise.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Arena() *arena.Arena {
	return s.arena
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// BroadcastAddr is the bound discovery address, or nil when discovery is
// not running.
func (s *Server) BroadcastAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broadcaster == nil {
		return nil
	}
	return s.broadcaster.LocalAddr()
}

type Status struct {
	Phase    string                         `json:"phase"`
	InGame   bool                           `json:"inGame"`
	Port     int                            `json:"port"`
	Password bool                           `json:"password"`
	Players  [arena.MaxPlayers]*arena.Player `json:"players"`
}

func (s *Server) Status() Status {
	return Status{
		Phase:    s.arena.Phase().String(),
		InGame:   s.arena.InGame(),
		Port:     s.Port(),
		Password: s.arena.HasPassword(),
		Players:  s.arena.Seats(),
	}
}

func (s *Server) restartMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.closed.Load() {
		return
	}
	s.monitor = NewMonitor(s.arena, s.cfg.SweepInterval, s.logger, s.metrics)
	s.monitor.Start()
}

func (s *Server) stopMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor != nil {
		s.monitor.Stop()
	}
}

func (s *Server) startBroadcaster() {
	if s.cfg.BroadcastPort < 0 {
		return
	}
	b := NewBroadcaster(s.arena, s.cfg.Host, s.cfg.BroadcastPort, s.Port(), s.logger, s.metrics, s.callback)
	if err := b.Start(); err != nil {
		s.logger.Error("discovery disabled", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		b.Stop()
		return
	}
	s.broadcaster = b
}

func (s *Server) stopBroadcaster() {
	s.mu.Lock()
	b := s.broadcaster
	s.mu.Unlock()
	if b != nil {
		b.Stop()
	}
}
