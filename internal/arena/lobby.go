package arena

import (
	"fmt"
	"strings"
	"time"
)

const colourDigits = "0123456789ABCDEF"

type JoinResult struct {
	Seat     int
	Token    string
	UserName string // after duplicate suffixing
}

// LobbyView is the reply to a lobby query: all four seats, empty ones null.
type LobbyView struct {
	Players [MaxPlayers]*Player `json:"players"`
	Started bool                `json:"started"`
}

// Join seats a new player. Capacity is checked before the password.
func (a *Arena) Join(username, password string) (JoinResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.size >= MaxPlayers || a.phase != PhaseLobby {
		return JoinResult{}, ErrLobbyFull
	}
	if !a.passwordMatchesLocked(password) {
		return JoinResult{}, ErrIncorrectPassword
	}

	seat := -1
	for i, p := range a.players {
		if p == nil {
			seat = i
			break
		}
	}

	username = a.uniqueNameLocked(username)
	coord := a.takeCoordLocked()

	a.players[seat] = &Player{
		X:        coord.X,
		Y:        coord.Y,
		UserName: username,
		Colour:   a.randomColourLocked(),
		Host:     a.size == 0,
	}
	a.size++
	a.heartbeats[seat] = true
	a.canStartUp[username] = true

	token := a.newTokenLocked()
	a.tokens[username] = token

	return JoinResult{Seat: seat, Token: token, UserName: username}, nil
}

func (a *Arena) passwordMatchesLocked(password string) bool {
	if a.password == "" {
		return password == NoPassword
	}
	return HashPassword(password) == a.password
}

// uniqueNameLocked suffixes " (n)" where n counts exact duplicates, bumping n
// while the suffixed name is itself taken.
func (a *Arena) uniqueNameLocked(username string) string {
	taken := make(map[string]bool, MaxPlayers)
	count := 0
	for _, p := range a.players {
		if p == nil {
			continue
		}
		taken[p.UserName] = true
		if p.UserName == username {
			count++
		}
	}
	if count == 0 {
		return username
	}
	for n := count; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", username, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func (a *Arena) takeCoordLocked() Coord {
	i := a.rng.Intn(len(a.coords))
	c := a.coords[i]
	a.coords = append(a.coords[:i], a.coords[i+1:]...)
	return c
}

func (a *Arena) randomColourLocked() string {
	var b strings.Builder
	b.WriteByte('#')
	for i := 0; i < 6; i++ {
		b.WriteByte(colourDigits[a.rng.Intn(len(colourDigits))])
	}
	return b.String()
}

// newTokenLocked hashes the current timestamp. The sequence number keeps two
// joins inside one clock tick from sharing a token.
func (a *Arena) newTokenLocked() string {
	a.tokenSeq++
	stamp := a.now().Format(time.RFC3339Nano)
	return HashPassword(fmt.Sprintf("%s#%d", stamp, a.tokenSeq))
}

// Query refreshes the seat's heartbeat and returns the lobby view.
func (a *Arena) Query(seat int) (LobbyView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.occupiedLocked(seat); err != nil {
		return LobbyView{}, err
	}
	a.heartbeats[seat] = true
	return LobbyView{Players: a.seatsLocked(), Started: a.hostStart}, nil
}

// Token returns the session token of the player in seat.
func (a *Arena) Token(seat int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.occupiedLocked(seat)
	if err != nil {
		return "", err
	}
	return a.tokens[p.UserName], nil
}

// Quit removes the player in seat from the lobby and returns their name.
func (a *Arena) Quit(seat int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.occupiedLocked(seat)
	if err != nil {
		return "", err
	}
	a.removeSeatLocked(seat)
	delete(a.heartbeats, seat)
	return p.UserName, nil
}

// removeSeatLocked frees a seat and everything keyed by its player, except
// the heartbeat entry, which the sweep removes after iterating.
func (a *Arena) removeSeatLocked(seat int) {
	p := a.players[seat]
	if p.Host {
		for i, other := range a.players {
			if other != nil && i != seat {
				other.Host = true
				break
			}
		}
	}
	a.size--
	a.coords = append(a.coords, Coord{X: p.X, Y: p.Y})
	delete(a.tokens, p.UserName)
	delete(a.canStartUp, p.UserName)
	a.players[seat] = nil
}

// Start marks the seat ready and records that the host asked to start. When
// every occupied seat is ready the arena moves to InGame; started reports
// whether that happened on this call.
func (a *Arena) Start(seat int) (ready, started bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.occupiedLocked(seat)
	if err != nil {
		return false, false, err
	}
	if a.phase != PhaseLobby {
		return p.Ready, false, nil
	}

	p.Ready = true
	a.hostStart = true

	allReady := true
	for _, other := range a.players {
		if other != nil {
			allReady = allReady && other.Ready
		}
	}
	if allReady {
		started = a.startMatchLocked()
	}
	return p.Ready, started, nil
}

func (a *Arena) occupiedLocked(seat int) (*Player, error) {
	if !validSeat(seat) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeat, seat)
	}
	p := a.players[seat]
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrSeatEmpty, seat)
	}
	return p, nil
}
