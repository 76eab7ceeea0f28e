package reader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/chatwatch/internal/connectors"
)

type recorder struct {
	lines       []string
	disconnects int
	servers     []string
}

func (r *recorder) HandleLine(_ context.Context, line string) { r.lines = append(r.lines, line) }
func (r *recorder) EndSession(context.Context)                { r.disconnects++ }
func (r *recorder) SetIdentity(_, server string)              { r.servers = append(r.servers, server) }

func TestReaderPlainLines(t *testing.T) {
	rec := &recorder{}
	src := New("stdin", strings.NewReader("<Steve> hi\n\nPlayerA whispers to you: yo\n"), nil, nil)

	require.NoError(t, src.Run(context.Background(), rec))
	assert.Equal(t, "stdin", src.Name())
	assert.Equal(t, []string{"<Steve> hi", "PlayerA whispers to you: yo"}, rec.lines)
}

func TestReaderClientLog(t *testing.T) {
	input := strings.Join([]string{
		"[11:59:30] [Render thread/INFO]: Connecting to play.example.net, 25565",
		"[12:00:01] [Render thread/INFO]: [CHAT] <Steve> 100 64 200",
		"[12:00:02] [Render thread/INFO]: Loaded 7 advancements",
		"[13:00:00] [Render thread/INFO]: Disconnecting from server",
	}, "\n")
	rec := &recorder{}

	require.NoError(t, New("replay", strings.NewReader(input), connectors.ParseClientLog, nil).Run(context.Background(), rec))
	assert.Equal(t, []string{"play.example.net:25565"}, rec.servers)
	assert.Equal(t, []string{"<Steve> 100 64 200"}, rec.lines)
	assert.Equal(t, 1, rec.disconnects)
}

func TestReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New("stdin", strings.NewReader("a\nb\n"), nil, nil).Run(ctx, &recorder{})
	assert.True(t, errors.Is(err, context.Canceled))
}
