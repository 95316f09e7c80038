package server

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/arena"
)

func startBroadcaster(t *testing.T, a *arena.Arena) (*Broadcaster, chan string) {
	t.Helper()
	tags := make(chan string, 4)
	b := NewBroadcaster(a, "127.0.0.1", 0, 44444, NewLogger(nil, nil), NewMetrics(a), func(tag string) { tags <- tag })
	require.NoError(t, b.Start())
	t.Cleanup(b.Stop)
	return b, tags
}

func probe(t *testing.T, to net.Addr, payload string) ([]byte, error) {
	t.Helper()
	conn, err := net.Dial("udp4", to.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	return buf[:n], err
}

func TestBroadcaster_AnswersProbe(t *testing.T) {
	a := arena.New(arena.WithPassword("hunter2"))
	_, err := a.Join("Ann", "hunter2")
	require.NoError(t, err)
	b, _ := startBroadcaster(t, a)

	reply, err := probe(t, b.LocalAddr(), BroadcastProbe)
	require.NoError(t, err)

	var ad Advertisement
	require.NoError(t, json.Unmarshal(reply, &ad))
	assert.Equal(t, 44444, ad.Port)
	assert.True(t, ad.Data.Password)
	require.NotNil(t, ad.Data.Players[0])
	assert.Equal(t, "Ann", ad.Data.Players[0].UserName)
	assert.Nil(t, ad.Data.Players[1])
}

func TestBroadcaster_IgnoresOtherDatagrams(t *testing.T) {
	b, _ := startBroadcaster(t, arena.New())

	_, err := probe(t, b.LocalAddr(), "arena_broadcast_req_please")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))

	// still serving
	_, err = probe(t, b.LocalAddr(), BroadcastProbe)
	assert.NoError(t, err)
}

func TestBroadcaster_StopFiresCallback(t *testing.T) {
	b, tags := startBroadcaster(t, arena.New())

	b.Stop()
	select {
	case tag := <-tags:
		assert.Equal(t, TagBroadcast, tag)
	case <-time.After(time.Second):
		t.Fatal("no broadcast callback")
	}

	// stopping again is harmless and does not fire twice
	b.Stop()
	assert.Empty(t, tags)
}

// Why: discovery must go quiet on its own once the match starts
func TestBroadcaster_StopsWhenLobbyCloses(t *testing.T) {
	a := arena.New()
	_, err := a.Join("Ann", arena.NoPassword)
	require.NoError(t, err)
	_, tags := startBroadcaster(t, a)

	_, started, err := a.Start(0)
	require.NoError(t, err)
	require.True(t, started)

	select {
	case tag := <-tags:
		assert.Equal(t, TagBroadcast, tag)
	case <-time.After(3 * time.Second):
		t.Fatal("responder kept running after the match started")
	}
}

// Why: a discovery request that wakes the responder after the match started must go
// unanswered even though the loop checked the phase before blocking
func TestBroadcaster_SilentOncePhaseLeavesLobby(t *testing.T) {
	a := arena.New()
	_, err := a.Join("Ann", arena.NoPassword)
	require.NoError(t, err)
	b, tags := startBroadcaster(t, a)

	// let the responder block in its read
	time.Sleep(100 * time.Millisecond)
	_, started, err := a.Start(0)
	require.NoError(t, err)
	require.True(t, started)

	reply, err := probe(t, b.LocalAddr(), BroadcastProbe)
	assert.Error(t, err)
	assert.Empty(t, reply)

	select {
	case tag := <-tags:
		assert.Equal(t, TagBroadcast, tag)
	case <-time.After(3 * time.Second):
		t.Fatal("responder kept running after the match started")
	}
}

func TestServer_DiscoveryDuringLobbyOnly(t *testing.T) {
	ts := startTestServer(t, func(c *Config) { c.BroadcastPort = 0 })

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = ts.BroadcastAddr()
		return addr != nil
	}, 2*time.Second, 10*time.Millisecond)

	reply, err := probe(t, addr, BroadcastProbe)
	require.NoError(t, err)
	var ad Advertisement
	require.NoError(t, json.Unmarshal(reply, &ad))
	assert.Equal(t, ts.Port(), ad.Port)
	assert.False(t, ad.Data.Password)

	require.Regexp(t, joinedReply, send(t, ts.Addr(), "join=Ann;None"))
	send(t, ts.Addr(), "start=0")
	ts.waitTag(t, TagBroadcast)

	_, err = probe(t, addr, BroadcastProbe)
	assert.Error(t, err)
}
