package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbrowser-ai/opensession/pkg/event"
	"github.com/openbrowser-ai/opensession/pkg/history"
	"github.com/openbrowser-ai/opensession/pkg/message"
	"github.com/openbrowser-ai/opensession/pkg/taskqueue"
)

type testEnv struct {
	pipeline *Pipeline
	log      *history.MessageLog
	dir      *history.Directory
	queue    *taskqueue.Queue
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	store, err := history.Open(history.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		MaxMessages: 100,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := taskqueue.New(zerolog.Nop())
	log := history.NewMessageLog(store)
	dir := history.NewDirectory(store)

	p, err := New(Config{
		MessageLog: log,
		Directory:  dir,
		Queue:      queue,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	return &testEnv{pipeline: p, log: log, dir: dir, queue: queue}
}

// settle enqueues a barrier on the store lane and waits for it, so every
// previously enqueued persistence task has finished.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, e.queue.Enqueue("store", "barrier", func(ctx context.Context) error {
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store lane never drained")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{MessageLog: &history.MessageLog{}})
	assert.Error(t, err)

	_, err = New(Config{MessageLog: &history.MessageLog{}, Directory: &history.Directory{}})
	assert.Error(t, err)
}

func TestProcess_FullTurnPersists(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"working","streamDone":true}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"tool_use","sessionId":"s1","toolId":"t1","toolName":"click"}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"tool_result","sessionId":"s1","toolId":"t1","toolName":"click","toolResult":"ok"}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"stop"}`))
	env.settle(t)

	msgs, err := env.log.LoadAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, message.RoleAssistant, msgs[0].Role)
	require.Len(t, msgs[0].Items, 3)

	s, err := env.dir.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s, "finalization must touch the session directory")
}

func TestProcess_MalformedEventDropped(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"kept","streamDone":true}`))
	env.pipeline.Process(ctx, "s1", []byte(`not json at all`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"stop"}`))
	env.settle(t)

	msgs, err := env.log.LoadAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Items, 1)
	assert.Equal(t, "kept", msgs[0].Items[0].Text)
}

func TestProcess_OnlySettledEventsProduceItems(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"par","streamDone":false}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"partial answer","streamDone":true}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"thinking","sessionId":"s1","text":"hm","streamDone":false}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"message","messageType":"thinking","sessionId":"s1","text":"decided","streamDone":true}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"stop"}`))
	env.settle(t)

	msgs, err := env.log.LoadAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Items, 2)
	assert.Equal(t, "partial answer", msgs[0].Items[0].Text)
	assert.Equal(t, "decided", msgs[0].Items[1].Text)
}

func TestProcess_StopWithoutTurnIsNoop(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	env.pipeline.Process(ctx, "s1", []byte(`{"type":"stop"}`))
	env.pipeline.Process(ctx, "s1", []byte(`{"type":"stop"}`))
	env.settle(t)

	n, err := env.log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestApply_FinalizeHookSeesMessageFirst(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	var hooked *message.Message
	env.pipeline.onFinalize = func(msg message.Message) {
		hooked = &msg
	}

	env.pipeline.Apply(ctx, "s1", event.TextEvent{Session: "s1", Text: "hi", StreamDone: true})
	env.pipeline.Apply(ctx, "s1", event.StopEvent{})
	env.settle(t)

	require.NotNil(t, hooked)
	assert.Equal(t, "s1", hooked.SessionID)
	require.Len(t, hooked.Items, 1)
}

func TestApply_TurnPersistsUnderItsOwnSession(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	// Events scoped by one channel finalize under the session they declare.
	env.pipeline.Apply(ctx, "main", event.TextEvent{Session: "sub", Text: "from subagent", StreamDone: true})
	env.pipeline.Apply(ctx, "main", event.StopEvent{})
	env.settle(t)

	msgs, err := env.log.LoadAll(ctx, "sub")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	mainMsgs, err := env.log.LoadAll(ctx, "main")
	require.NoError(t, err)
	assert.Empty(t, mainMsgs)
}

func TestCurrent(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	assert.Nil(t, env.pipeline.Current("s1"))

	env.pipeline.Apply(ctx, "s1", event.TextEvent{Session: "s1", Text: "hi", StreamDone: true})
	require.NotNil(t, env.pipeline.Current("s1"))

	env.pipeline.Apply(ctx, "s1", event.StopEvent{})
	assert.Nil(t, env.pipeline.Current("s1"))
}

func TestSubmitUser(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	msg, err := env.pipeline.SubmitUser(ctx, "s1", "check the weather", nil)
	require.NoError(t, err)
	assert.Equal(t, message.RoleUser, msg.Role)
	env.settle(t)

	msgs, err := env.log.LoadAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "check the weather", msgs[0].Text)

	s, err := env.dir.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "check the weather", s.Title)
}

func TestSubmitUser_Validation(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.pipeline.SubmitUser(ctx, "", "text", nil)
	assert.Error(t, err)

	_, err = env.pipeline.SubmitUser(ctx, "s1", "", nil)
	assert.Error(t, err)

	_, err = env.pipeline.SubmitUser(ctx, "s1", "text", []message.Item{{Type: message.ItemText, Text: "nope"}})
	assert.Error(t, err)
}

func TestSubmitUser_Attachments(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.pipeline.SubmitUser(ctx, "s1", "", []message.Item{
		{Type: message.ItemFile, Data: []byte{0x89, 0x50}, MimeType: "image/png"},
	})
	require.NoError(t, err)
	env.settle(t)

	msgs, err := env.log.LoadAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Items, 1)
	assert.Equal(t, message.ItemFile, msgs[0].Items[0].Type)
}

func TestPending_RetryAfterQueueShutdown(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	require.NoError(t, env.queue.Shutdown(ctx))

	env.pipeline.Apply(ctx, "s1", event.TextEvent{Session: "s1", Text: "hi", StreamDone: true})
	env.pipeline.Apply(ctx, "s1", event.StopEvent{})

	pending := env.pipeline.Pending()
	require.Len(t, pending, 1)

	require.NoError(t, env.pipeline.RetryPending(ctx))
	assert.Empty(t, env.pipeline.Pending())

	msgs, err := env.log.LoadAll(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
