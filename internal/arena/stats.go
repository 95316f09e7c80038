package arena

import (
	"slices"
	"sort"
	"time"
)

// Standing is one line of the post-match summary.
type Standing struct {
	UserName string `json:"username"`
	Colour   string `json:"colour"`
}

// Summary is the persisted result of a match. Players are ranked winner
// first, which is the reverse of the order they died in.
type Summary struct {
	Players    []Standing `json:"players"`
	GameLength [2]int     `json:"gameLength"`

	StartedAt time.Time `json:"-"`
	EndedAt   time.Time `json:"-"`
}

// Summary ranks every game object exactly once. Objects still alive at the
// end never entered the death order; they are appended weakest first (lowest
// health, ties by higher id) so that after reversal the healthiest survivor
// ranks first and equal health favours the earlier joiner. A single survivor
// is simply the winner.
func (a *Arena) Summary(start, end time.Time) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	order := slices.Clone(a.deaths)

	var survivors []*GameObject
	for _, o := range a.objects {
		if !slices.Contains(order, o.ID) {
			survivors = append(survivors, o)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].Health != survivors[j].Health {
			return survivors[i].Health < survivors[j].Health
		}
		return survivors[i].ID > survivors[j].ID
	})
	for _, o := range survivors {
		order = append(order, o.ID)
	}
	slices.Reverse(order)

	players := make([]Standing, 0, len(order))
	for _, id := range order {
		o := a.objects[id]
		players = append(players, Standing{UserName: o.UserName, Colour: o.Colour})
	}

	return Summary{
		Players:    players,
		GameLength: GameLength(end.Sub(start)),
		StartedAt:  start,
		EndedAt:    end,
	}
}

// GameLength splits a duration into whole minutes and remaining seconds.
func GameLength(d time.Duration) [2]int {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return [2]int{secs / 60, secs % 60}
}
