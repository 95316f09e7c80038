package arena

import (
	"fmt"
	"slices"
)

// Damage is one hit the updating player dealt to another object.
type Damage struct {
	ID     int     `json:"id"`
	Damage float64 `json:"damage"`
}

type StartUpView struct {
	Players []Player `json:"players"`
	Ready   bool     `json:"ready"`
}

type UpdateView struct {
	Players []GameObject `json:"players"`
	Damages []float64    `json:"damages"`
}

// StartUp marks the seat as the local, ready player for the page that is
// entering the match. A player who already sent a match update cannot start
// up again, which stops a page reload from respawning them.
func (a *Arena) StartUp(seat int) (StartUpView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseInGame {
		return StartUpView{}, ErrWrongPhase
	}
	p, err := a.occupiedLocked(seat)
	if err != nil {
		return StartUpView{}, err
	}
	if !a.canStartUp[p.UserName] {
		return StartUpView{}, fmt.Errorf("%w: %s", ErrCannotStartUp, p.UserName)
	}

	view := StartUpView{Players: make([]Player, 0, a.size), Ready: true}
	for i, other := range a.players {
		if other == nil {
			continue
		}
		if i == seat {
			other.Local = true
			other.Ready = true
		} else {
			other.Local = false
		}
		if _, ok := a.damages[i]; !ok {
			a.damages[i] = []float64{}
		}
		view.Ready = view.Ready && other.Ready
		view.Players = append(view.Players, *other)
	}
	return view, nil
}

// Update stores the sender's object, queues the damage it dealt and returns
// every object plus the damage queued for the sender, which is then cleared.
// Ids are dense in join order: id == count appends, id < count overwrites and
// anything else is rejected.
func (a *Arena) Update(obj GameObject, damages []Damage) (UpdateView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseInGame {
		return UpdateView{}, ErrWrongPhase
	}
	switch {
	case obj.ID < 0 || obj.ID > len(a.objects):
		return UpdateView{}, fmt.Errorf("%w: id %d with %d objects", ErrSparseID, obj.ID, len(a.objects))
	case obj.ID == len(a.objects):
		a.objects = append(a.objects, &obj)
	default:
		a.objects[obj.ID] = &obj
	}

	for _, d := range damages {
		a.damages[d.ID] = append(a.damages[d.ID], d.Damage)
	}

	view := UpdateView{
		Players: a.objectsLocked(),
		Damages: a.damages[obj.ID],
	}
	if view.Damages == nil {
		view.Damages = []float64{}
	}
	a.damages[obj.ID] = []float64{}

	a.canStartUp[obj.UserName] = false
	if seat := a.seatOfLocked(obj.UserName); seat >= 0 {
		a.heartbeats[seat] = true
	}
	a.recordDeathsLocked()

	return view, nil
}

// QuitMatch stops the monitor from tracking seat and kills the object of the
// player who left from it. A player who never sent an update has no object;
// only the heartbeat entry goes.
func (a *Arena) QuitMatch(seat int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !validSeat(seat) {
		return fmt.Errorf("%w: %d", ErrInvalidSeat, seat)
	}
	delete(a.heartbeats, seat)

	obj := a.objectForSeatLocked(seat)
	if obj == nil {
		if a.players[seat] == nil {
			return fmt.Errorf("%w: %d", ErrSeatEmpty, seat)
		}
		return nil
	}
	obj.kill()
	a.recordDeathsLocked()
	return nil
}

// Objects returns a copy of the live game objects in id order.
func (a *Arena) Objects() []GameObject {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.objectsLocked()
}

// DeathOrder returns the ids in the order they died.
func (a *Arena) DeathOrder() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.deaths)
}

func (a *Arena) objectsLocked() []GameObject {
	out := make([]GameObject, len(a.objects))
	for i, o := range a.objects {
		out[i] = *o
	}
	return out
}

func (a *Arena) seatOfLocked(username string) int {
	for i, p := range a.players {
		if p != nil && p.UserName == username {
			return i
		}
	}
	return -1
}

func (a *Arena) objectByNameLocked(username string) *GameObject {
	for _, o := range a.objects {
		if o.UserName == username {
			return o
		}
	}
	return nil
}

// objectForSeatLocked maps a lobby seat to its game object. Seat numbers and
// object ids differ once seats were vacated, so the username decides; the id
// is only used when the seat no longer has a player.
func (a *Arena) objectForSeatLocked(seat int) *GameObject {
	if p := a.players[seat]; p != nil {
		return a.objectByNameLocked(p.UserName)
	}
	if seat < len(a.objects) {
		return a.objects[seat]
	}
	return nil
}

func (a *Arena) recordDeathsLocked() {
	for _, o := range a.objects {
		if !o.Alive && !slices.Contains(a.deaths, o.ID) {
			a.deaths = append(a.deaths, o.ID)
		}
	}
}
