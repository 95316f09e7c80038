package arena

import "sort"

// Eviction describes a seat the sweep removed for missing two heartbeats.
type Eviction struct {
	Seat     int
	UserName string
	Phase    Phase
}

// Sweep consumes one grace cycle of every tracked seat. A seat contacted
// since the previous sweep is flipped to false; a seat already false is
// evicted: cleared in the lobby, killed in a running match. Heartbeat entries
// of evicted seats are removed once iteration is done.
func (a *Arena) Sweep() []Eviction {
	a.mu.Lock()
	defer a.mu.Unlock()

	seats := make([]int, 0, len(a.heartbeats))
	for seat := range a.heartbeats {
		seats = append(seats, seat)
	}
	sort.Ints(seats)

	var evicted []Eviction
	for _, seat := range seats {
		if a.heartbeats[seat] {
			a.heartbeats[seat] = false
			continue
		}
		ev := Eviction{Seat: seat, Phase: a.phase}
		switch a.phase {
		case PhaseLobby:
			if p := a.players[seat]; p != nil {
				ev.UserName = p.UserName
				a.removeSeatLocked(seat)
			}
		case PhaseInGame:
			if p := a.players[seat]; p != nil {
				ev.UserName = p.UserName
				if obj := a.objectByNameLocked(p.UserName); obj != nil {
					obj.kill()
				}
			}
		}
		evicted = append(evicted, ev)
	}

	for _, ev := range evicted {
		delete(a.heartbeats, ev.Seat)
	}
	if a.phase == PhaseInGame {
		a.recordDeathsLocked()
	}
	return evicted
}
