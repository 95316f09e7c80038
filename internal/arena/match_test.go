package arena

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startedArena seats the names and readies every seat so the match is running.
func startedArena(t *testing.T, names ...string) *Arena {
	t.Helper()
	a := newTestArena()
	joinAll(t, a, names...)
	for seat := range names {
		_, _, err := a.Start(seat)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseInGame, a.Phase())
	return a
}

func object(id int, name string, health float64) GameObject {
	return GameObject{ID: id, UserName: name, Colour: "#ABCDEF", Health: health, Alive: health > 0}
}

func TestStartUp_MarksLocalPlayer(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")

	view, err := a.StartUp(1)
	require.NoError(t, err)
	require.Len(t, view.Players, 2)
	assert.True(t, view.Ready)
	assert.False(t, view.Players[0].Local)
	assert.True(t, view.Players[1].Local)
	assert.Equal(t, "Bob", view.Players[1].UserName)
}

func TestStartUp_RequiresRunningMatch(t *testing.T) {
	a := newTestArena()
	joinAll(t, a, "Alice")
	_, err := a.StartUp(0)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

// Why: a reload after the first update must not respawn the player
func TestStartUp_RefusedAfterFirstUpdate(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")
	_, err := a.StartUp(0)
	require.NoError(t, err)

	_, err = a.Update(object(0, "Alice", 100), nil)
	require.NoError(t, err)

	_, err = a.StartUp(0)
	assert.ErrorIs(t, err, ErrCannotStartUp)

	_, err = a.StartUp(1)
	assert.NoError(t, err, "Bob has not sent an update yet")
}

func TestUpdate_DenseIDs(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")

	_, err := a.Update(object(1, "Bob", 100), nil)
	assert.ErrorIs(t, err, ErrSparseID)
	assert.Empty(t, a.Objects())

	_, err = a.Update(object(0, "Alice", 100), nil)
	require.NoError(t, err)
	_, err = a.Update(object(1, "Bob", 100), nil)
	require.NoError(t, err)

	view, err := a.Update(object(0, "Alice", 75), nil)
	require.NoError(t, err)
	require.Len(t, view.Players, 2)
	assert.Equal(t, 75.0, view.Players[0].Health)

	_, err = a.Update(object(5, "Ghost", 100), nil)
	assert.ErrorIs(t, err, ErrSparseID)
	assert.Len(t, a.Objects(), 2)
}

func TestUpdate_DeliversQueuedDamageOnce(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")
	for seat := 0; seat < 2; seat++ {
		_, err := a.StartUp(seat)
		require.NoError(t, err)
	}

	_, err := a.Update(object(0, "Alice", 100), []Damage{{ID: 1, Damage: 10}, {ID: 1, Damage: 5}})
	require.NoError(t, err)

	view, err := a.Update(object(1, "Bob", 85), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 5}, view.Damages)

	view, err = a.Update(object(1, "Bob", 85), nil)
	require.NoError(t, err)
	assert.Empty(t, view.Damages)
	assert.NotNil(t, view.Damages)
}

func TestUpdate_RefreshesHeartbeatOfSender(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")
	a.Sweep()

	contacted, _ := a.Heartbeat(1)
	require.False(t, contacted)

	_, err := a.Update(object(0, "Bob", 100), nil)
	require.NoError(t, err)

	contacted, _ = a.Heartbeat(1)
	assert.True(t, contacted, "heartbeat follows the username, not the object id")
}

func TestUpdate_RecordsDeathsOnce(t *testing.T) {
	a := startedArena(t, "Alice", "Bob", "Carol")
	for i, name := range []string{"Alice", "Bob", "Carol"} {
		_, err := a.Update(object(i, name, 100), nil)
		require.NoError(t, err)
	}

	_, err := a.Update(object(1, "Bob", 0), nil)
	require.NoError(t, err)
	_, err = a.Update(object(1, "Bob", 0), nil)
	require.NoError(t, err)
	_, err = a.Update(object(2, "Carol", 0), nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, a.DeathOrder())
}

func TestQuitMatch_KillsObject(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")
	_, err := a.Update(object(0, "Alice", 100), nil)
	require.NoError(t, err)
	_, err = a.Update(object(1, "Bob", 100), nil)
	require.NoError(t, err)

	require.NoError(t, a.QuitMatch(1))

	bob := a.Objects()[1]
	assert.False(t, bob.Alive)
	assert.Zero(t, bob.Health)
	assert.Empty(t, bob.Bullets)
	assert.Equal(t, []int{1}, a.DeathOrder())

	_, tracked := a.Heartbeat(1)
	assert.False(t, tracked)
}

// Why: a player who leaves before their first update must not be reported
// as timed out by a later sweep
func TestQuitMatch_BeforeFirstUpdate(t *testing.T) {
	a := startedArena(t, "Alice", "Bob")

	require.NoError(t, a.QuitMatch(1))
	_, tracked := a.Heartbeat(1)
	assert.False(t, tracked)
	assert.Empty(t, a.Objects())

	a.Sweep()
	evicted := a.Sweep()
	require.Len(t, evicted, 1)
	assert.Equal(t, 0, evicted[0].Seat, "only Alice was still tracked")
}

func TestQuitMatch_EmptyOrInvalidSeat(t *testing.T) {
	a := startedArena(t, "Alice")

	err := a.QuitMatch(2)
	assert.ErrorIs(t, err, ErrSeatEmpty)

	err = a.QuitMatch(-1)
	assert.ErrorIs(t, err, ErrInvalidSeat)
}

func TestEndMatch_Idempotent(t *testing.T) {
	a := startedArena(t, "Alice")

	assert.True(t, a.EndMatch())
	assert.False(t, a.EndMatch())
	assert.Equal(t, PhaseGameOver, a.Phase())

	_, err := a.Update(object(0, "Alice", 100), nil)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestGameObject_UnknownFieldsSurvive(t *testing.T) {
	in := `{"id":0,"userName":"Alice","colour":"#112233","health":50,"bullets":[{"x":1}],"x":12.5,"facing":"left"}`

	var obj GameObject
	require.NoError(t, json.Unmarshal([]byte(in), &obj))
	assert.True(t, obj.Alive, "missing alive means still playing")
	assert.Len(t, obj.Bullets, 1)

	out, err := json.Marshal(obj)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, 12.5, got["x"])
	assert.Equal(t, "left", got["facing"])
	assert.Equal(t, "Alice", got["userName"])
	assert.Equal(t, true, got["alive"])
}

func TestGameObject_RequiresID(t *testing.T) {
	var obj GameObject
	err := json.Unmarshal([]byte(`{"userName":"Alice"}`), &obj)
	assert.Error(t, err)
}
