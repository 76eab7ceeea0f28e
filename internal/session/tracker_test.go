package session

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/chatwatch/internal/patterns"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type memorySink struct {
	files map[string][]string
	fail  map[string]bool
}

func newMemorySink() *memorySink {
	return &memorySink{files: map[string][]string{}, fail: map[string]bool{}}
}

func (s *memorySink) Append(file, record string) error {
	if s.fail[file] {
		return errors.New("disk full")
	}
	s.files[file] = append(s.files[file], record)
	return nil
}

func (s *memorySink) content(file string) string {
	return strings.Join(s.files[file], "")
}

func newTestTracker(t *testing.T, mutate func(*Config)) (*Tracker, *memorySink, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)}
	cfg := Config{
		MaxMessagesPerFile: 3,
		Timeout:            30 * time.Minute,
		Markers:            true,
		Timestamps:         true,
		Now:                clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sink := newMemorySink()
	tracker, err := NewTracker(cfg, sink)
	require.NoError(t, err)
	return tracker, sink, clock
}

func TestNewTrackerValidation(t *testing.T) {
	_, err := NewTracker(Config{MaxMessagesPerFile: 1, Timeout: time.Minute}, nil)
	assert.Error(t, err)
	_, err = NewTracker(Config{Timeout: time.Minute}, newMemorySink())
	assert.Error(t, err)
	_, err = NewTracker(Config{MaxMessagesPerFile: 1}, newMemorySink())
	assert.Error(t, err)
}

func TestRecordOpensSession(t *testing.T) {
	tracker, sink, _ := newTestTracker(t, nil)

	res, err := tracker.Record("playera", patterns.Incoming, "meet at base")
	require.NoError(t, err)
	assert.True(t, res.Opened)
	assert.Equal(t, "playera.txt", res.File)
	assert.Equal(t, IDPrefix, res.ID.Prefix)

	want := strings.Repeat("=", 52) + "\n" +
		"[2024-05-01 12:00:00] SESSION: CONVERSATION STARTED WITH PLAYERA\n" +
		strings.Repeat("=", 52) + "\n" +
		"[2024-05-01 12:00:00] FROM playera: meet at base\n"
	assert.Equal(t, want, sink.content("playera.txt"))

	res, err = tracker.Record("playera", patterns.Outgoing, "ok")
	require.NoError(t, err)
	assert.False(t, res.Opened)
	assert.Len(t, sink.files["playera.txt"], 3)
	assert.Equal(t, "[2024-05-01 12:00:00] TO playera: ok\n", sink.files["playera.txt"][2])
}

func TestRecordWithoutMarkersOrTimestamps(t *testing.T) {
	tracker, sink, _ := newTestTracker(t, func(c *Config) {
		c.Markers = false
		c.Timestamps = false
	})

	res, err := tracker.Record("bob", patterns.Incoming, "hi")
	require.NoError(t, err)
	assert.True(t, res.Opened)
	assert.Equal(t, []string{"FROM bob: hi\n"}, sink.files["bob.txt"])

	closed, ok, err := tracker.Close("bob", ReasonDisconnected)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", closed.Correspondent)
	assert.Len(t, sink.files["bob.txt"], 1)
}

func TestSweepClosesIdleSessions(t *testing.T) {
	tracker, sink, clock := newTestTracker(t, nil)

	_, err := tracker.Record("playerc", patterns.Incoming, "hello")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	closed, err := tracker.Sweep(clock.Now())
	require.NoError(t, err)
	assert.Empty(t, closed, "exactly at the timeout is not yet idle")

	clock.Advance(time.Second)
	closed, err = tracker.Sweep(clock.Now())
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Contains(t, closed[0].Reason, "TIMEOUT")
	assert.Equal(t, "TIMEOUT (30 minutes)", closed[0].Reason)
	assert.Contains(t, sink.content("playerc.txt"), "SESSION: CONVERSATION ENDED WITH PLAYERC - TIMEOUT (30 minutes)")
	assert.Equal(t, 0, tracker.OpenCount())

	res, err := tracker.Record("playerc", patterns.Incoming, "back")
	require.NoError(t, err)
	assert.True(t, res.Opened)
	assert.NotEqual(t, closed[0].ID, res.ID)
	assert.Equal(t, 2, strings.Count(sink.content("playerc.txt"), "CONVERSATION STARTED WITH PLAYERC"))
}

func TestRollover(t *testing.T) {
	tracker, sink, clock := newTestTracker(t, nil)

	for i := 0; i < 3; i++ {
		res, err := tracker.Record("steve", patterns.Incoming, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		assert.Equal(t, "steve.txt", res.File)
		assert.False(t, res.RolledOver)
	}
	assert.Equal(t, 3, tracker.Snapshot()[0].MessageCount)

	clock.Advance(5 * time.Second)
	res, err := tracker.Record("steve", patterns.Incoming, "msg 3")
	require.NoError(t, err)
	assert.True(t, res.RolledOver)
	assert.False(t, res.Opened, "rollover does not close the session")
	assert.Equal(t, "steve_20240501_120005.txt", res.File)
	assert.Equal(t, "steve.txt", res.Previous)

	info := tracker.Snapshot()[0]
	assert.Equal(t, 1, info.MessageCount)
	assert.Equal(t, 1, info.Rollovers)
	assert.Equal(t, "steve_20240501_120005.txt", info.File)
	assert.Equal(t, []string{"[2024-05-01 12:00:05] FROM steve: msg 3\n"}, sink.files[res.File])

	res, err = tracker.Record("steve", patterns.Incoming, "msg 4")
	require.NoError(t, err)
	assert.Equal(t, "steve_20240501_120005.txt", res.File, "rolled file is kept")
}

func TestRolloverOfClosedSessionPutsMarkerInNewFile(t *testing.T) {
	tracker, sink, clock := newTestTracker(t, func(c *Config) { c.MaxMessagesPerFile = 1 })

	_, err := tracker.Record("amy", patterns.Incoming, "one")
	require.NoError(t, err)
	_, err = tracker.EndAll(ReasonDisconnected)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := tracker.Record("amy", patterns.Incoming, "two")
	require.NoError(t, err)
	assert.True(t, res.Opened)
	assert.True(t, res.RolledOver)
	assert.Contains(t, sink.content(res.File), "CONVERSATION STARTED WITH AMY")
	assert.Contains(t, sink.content(res.File), "FROM amy: two")
}

func TestCloseIsIdempotent(t *testing.T) {
	tracker, sink, _ := newTestTracker(t, nil)

	_, err := tracker.Record("dan", patterns.Incoming, "hi")
	require.NoError(t, err)

	_, ok, err := tracker.Close("dan", ReasonDeactivated)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = tracker.Close("dan", ReasonDeactivated)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = tracker.Close("nobody", ReasonDeactivated)
	require.NoError(t, err)
	assert.False(t, ok)

	closed, err := tracker.EndAll(ReasonDisconnected)
	require.NoError(t, err)
	assert.Empty(t, closed)

	assert.Equal(t, 1, strings.Count(sink.content("dan.txt"), "CONVERSATION ENDED"))
}

func TestEndAll(t *testing.T) {
	tracker, sink, _ := newTestTracker(t, nil)

	for _, key := range []string{"zed", "amy", "bob"} {
		_, err := tracker.Record(key, patterns.Incoming, "hi")
		require.NoError(t, err)
	}
	_, _, err := tracker.Close("bob", ReasonDisconnected)
	require.NoError(t, err)

	closed, err := tracker.EndAll(ReasonDeactivated)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "amy", closed[0].Correspondent)
	assert.Equal(t, "zed", closed[1].Correspondent)
	assert.Contains(t, sink.content("zed.txt"), "CONVERSATION ENDED WITH ZED - MODULE DEACTIVATED")
	assert.Equal(t, 0, tracker.OpenCount())
}

func TestWriteFailureLeavesSessionClosed(t *testing.T) {
	tracker, sink, _ := newTestTracker(t, nil)
	sink.fail["eve.txt"] = true

	_, err := tracker.Record("eve", patterns.Incoming, "hi")
	assert.Error(t, err)
	assert.Equal(t, 0, tracker.OpenCount())
	assert.Equal(t, 0, tracker.Snapshot()[0].MessageCount)

	delete(sink.fail, "eve.txt")
	res, err := tracker.Record("eve", patterns.Incoming, "again")
	require.NoError(t, err)
	assert.True(t, res.Opened)
}

func TestCloseWriteFailureStillCloses(t *testing.T) {
	tracker, sink, _ := newTestTracker(t, nil)
	_, err := tracker.Record("eve", patterns.Incoming, "hi")
	require.NoError(t, err)

	sink.fail["eve.txt"] = true
	_, ok, err := tracker.Close("eve", ReasonDisconnected)
	assert.Error(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, tracker.OpenCount())
}

func TestSnapshotFilesAndReset(t *testing.T) {
	tracker, _, _ := newTestTracker(t, nil)
	_, err := tracker.Record("b", patterns.Incoming, "x")
	require.NoError(t, err)
	_, err = tracker.Record("a", patterns.Outgoing, "y")
	require.NoError(t, err)

	snap := tracker.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Correspondent)
	assert.True(t, snap[0].Open)
	assert.Equal(t, []string{"a.txt", "b.txt"}, tracker.Files())

	tracker.Reset()
	assert.Empty(t, tracker.Snapshot())
}

func TestTimeoutReason(t *testing.T) {
	assert.Equal(t, "TIMEOUT (5 minutes)", TimeoutReason(5*time.Minute))
	assert.Equal(t, "TIMEOUT (480 minutes)", TimeoutReason(8*time.Hour))
}
