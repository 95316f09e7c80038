// Package arena holds the authoritative state of one arena: the 4-seat lobby,
// the live match objects and the phase state machine that moves between them.
//
// Every exported method takes the arena lock for its whole read-modify-write,
// so callers on different goroutines (connection workers, the timeout
// monitor, the discovery responder) never observe a half-applied change.
package arena

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"
)

const (
	MaxPlayers  = 4
	FieldWidth  = 650
	FieldHeight = 650

	// NoPassword is what clients send when the lobby is not password protected.
	NoPassword = "None"
)

type Phase int

const (
	PhaseLobby Phase = iota
	PhaseInGame
	PhaseGameOver
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseInGame:
		return "in_game"
	case PhaseGameOver:
		return "game_over"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Coord is a spawn point on the playing field.
type Coord struct {
	X float64
	Y float64
}

// SpawnPoints returns the four fixed spawn points, one per quadrant.
func SpawnPoints() []Coord {
	w, h := float64(FieldWidth), float64(FieldHeight)
	return []Coord{
		{X: w / 4, Y: h / 4},
		{X: 3 * w / 4, Y: h / 4},
		{X: w / 4, Y: 3 * h / 4},
		{X: 3 * w / 4, Y: 3 * h / 4},
	}
}

// Player is the lobby record of one seat. The JSON names are the ones the
// browser client reads.
type Player struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	UserName string  `json:"userName"`
	Colour   string  `json:"colour"`
	Local    bool    `json:"local"`
	Ready    bool    `json:"ready"`
	Host     bool    `json:"host"`
}

type Arena struct {
	mu sync.Mutex

	phase    Phase
	password string // sha256 hex, empty when the lobby is open

	// lobby
	players    [MaxPlayers]*Player
	size       int
	coords     []Coord
	tokens     map[string]string
	heartbeats map[int]bool
	canStartUp map[string]bool
	hostStart  bool

	// match
	objects []*GameObject
	damages map[int][]float64
	deaths  []int

	rng      *rand.Rand
	now      func() time.Time
	tokenSeq uint64
}

type Option func(*Arena)

// WithPassword protects the lobby with the given plain-text password.
// An empty password leaves the lobby open.
func WithPassword(password string) Option {
	return func(a *Arena) {
		if password != "" {
			a.password = HashPassword(password)
		}
	}
}

// WithRand makes seat colours and spawn points deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(a *Arena) {
		a.rng = rng
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Arena) {
		a.now = now
	}
}

func New(opts ...Option) *Arena {
	a := &Arena{
		phase:      PhaseLobby,
		coords:     SpawnPoints(),
		tokens:     make(map[string]string),
		heartbeats: make(map[int]bool),
		canStartUp: make(map[string]bool),
		damages:    make(map[int][]float64),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HashPassword returns the hex sha256 digest used to compare lobby passwords.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (a *Arena) HasPassword() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.password != ""
}

func (a *Arena) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// InGame reports whether a match is running and not yet over.
func (a *Arena) InGame() bool {
	return a.Phase() == PhaseInGame
}

// EndMatch moves a running match to GameOver. It reports whether this call
// made the transition; repeated calls are no-ops.
func (a *Arena) EndMatch() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseInGame {
		return false
	}
	a.phase = PhaseGameOver
	return true
}

// Close moves the arena to its terminal phase from any phase.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phase = PhaseClosed
}

// startMatchLocked is the Lobby -> InGame transition. Caller holds a.mu.
func (a *Arena) startMatchLocked() bool {
	if a.phase != PhaseLobby {
		return false
	}
	a.phase = PhaseInGame
	return true
}

// Seats returns a copy of the seat array; empty seats are nil.
func (a *Arena) Seats() [MaxPlayers]*Player {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seatsLocked()
}

func (a *Arena) seatsLocked() [MaxPlayers]*Player {
	var out [MaxPlayers]*Player
	for i, p := range a.players {
		if p != nil {
			cp := *p
			out[i] = &cp
		}
	}
	return out
}

// LobbySize is the number of occupied seats.
func (a *Arena) LobbySize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// FreeCoords is the number of spawn points not assigned to a seat.
func (a *Arena) FreeCoords() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.coords)
}

// Heartbeat reports the heartbeat entry of a seat and whether one exists.
func (a *Arena) Heartbeat(seat int) (contacted, tracked bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	contacted, tracked = a.heartbeats[seat]
	return contacted, tracked
}

func validSeat(seat int) bool {
	return seat >= 0 && seat < MaxPlayers
}
