package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/dombridge"
	"github.com/xkilldash9x/replykit/internal/engine"
)

const composerPage = `<html><body><div id="composer">
	<textarea id="msg">draft text</textarea>
	<button id="send">送信</button>
</div></body></html>`

var composerSelectors = engine.SelectorSet{
	SendButton: engine.SelectorGroup{`//button[@id='send']`},
	Input:      engine.SelectorGroup{`//textarea[@id='msg']`},
	Compose:    engine.SelectorGroup{`//div[@id='composer']`},
}

func fastConfig() engine.Config {
	return engine.Config{
		GracePeriod:   100 * time.Millisecond,
		StepDelay:     10 * time.Millisecond,
		SettleDelay:   50 * time.Millisecond,
		QuickWindow:   500 * time.Millisecond,
		ConfirmWindow: 2 * time.Second,
		PollInterval:  100 * time.Millisecond,
	}
}

// clearInputOnClick wires the bridge so the first click strategy empties the
// draft, the way a real host page reacts to a send.
func clearInputOnClick(b *dombridge.Bridge) {
	b.OnDispatch(func(kind, _ string) error {
		b.Apply(func(doc *html.Node) {
			n := htmlquery.FindOne(doc, `//textarea[@id='msg']`)
			if n != nil {
				n.Attr = append(n.Attr, html.Attribute{Key: engine.AttrValue, Val: ""})
			}
		})
		return nil
	})
}

func TestAttemptSendHappyPath(t *testing.T) {
	b := newBridge(t, composerPage)
	clearInputOnClick(b)

	e := engine.New(b, composerSelectors, fastConfig(), nil, zap.NewNop())
	sent, err := e.AttemptSend(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, sent)

	// The known selector resolved in phase 1 and the first strategy stuck.
	assert.Equal(t, "pointer", clickKinds(b.DispatchLog())[0])

	m := e.Metrics().Snapshot()
	assert.EqualValues(t, 1, m.Attempts)
	assert.EqualValues(t, 1, m.Confirmed)
	assert.EqualValues(t, 0, m.NotFound)
}

func TestAttemptSendHintMissFallsBackToDiscovery(t *testing.T) {
	b := newBridge(t, composerPage)
	clearInputOnClick(b)

	e := engine.New(b, composerSelectors, fastConfig(), nil, zap.NewNop())
	sent, err := e.AttemptSend(context.Background(), `//button[@id='renamed-away']`)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestAttemptSendNotFound(t *testing.T) {
	// Upload-only page: the sole control is file-related and must never be
	// treated as a send button.
	b := newBridge(t, `<html><body>
		<form><button type="submit">ファイルを選択</button><input type="file"></form>
	</body></html>`)

	cfg := fastConfig()
	e := engine.New(b, composerSelectors, cfg, nil, zap.NewNop())
	sent, err := e.AttemptSend(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.False(t, sent)
	assert.Empty(t, clickKinds(b.DispatchLog()), "nothing may be clicked without a candidate")
	assert.GreaterOrEqual(t, b.Slept(), cfg.GracePeriod, "all discovery phases must run first")

	m := e.Metrics().Snapshot()
	assert.EqualValues(t, 1, m.NotFound)
	assert.EqualValues(t, 0, m.Confirmed)
}

func TestAttemptSendInteractionFailed(t *testing.T) {
	b := newBridge(t, composerPage)
	b.OnDispatch(func(kind, _ string) error {
		return assert.AnError // every dispatch rejected by the page
	})

	e := engine.New(b, composerSelectors, fastConfig(), nil, zap.NewNop())
	sent, err := e.AttemptSend(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrInteractionFailed)
	assert.False(t, sent)
	assert.EqualValues(t, 1, e.Metrics().Snapshot().InteractionFailed)
}

func TestAttemptSendRejectsConcurrentInvocation(t *testing.T) {
	b := newBridge(t, composerPage)
	e := engine.New(b, composerSelectors, fastConfig(), nil, zap.NewNop())

	// Re-enter from inside the first attempt's click dispatch, the way a
	// double-triggered upstream handler would.
	var reentrant error
	b.OnDispatch(func(kind, _ string) error {
		if reentrant == nil {
			_, reentrant = e.AttemptSend(context.Background(), "")
		}
		b.Apply(func(doc *html.Node) {
			n := htmlquery.FindOne(doc, `//textarea[@id='msg']`)
			if n != nil {
				n.Attr = append(n.Attr, html.Attribute{Key: engine.AttrValue, Val: ""})
			}
		})
		return nil
	})

	sent, err := e.AttemptSend(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, sent, "the first attempt still completes")
	assert.ErrorIs(t, reentrant, engine.ErrBusy)
	assert.EqualValues(t, 1, e.Metrics().Snapshot().Rejected)
}

func TestAttemptSendSequentialInvocationsAllowed(t *testing.T) {
	b := newBridge(t, composerPage)
	clearInputOnClick(b)

	e := engine.New(b, composerSelectors, fastConfig(), nil, zap.NewNop())
	for i := 0; i < 2; i++ {
		sent, err := e.AttemptSend(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, sent)
	}
	assert.EqualValues(t, 2, e.Metrics().Snapshot().Attempts)
}

func TestAttemptSendContextCancelled(t *testing.T) {
	b := newBridge(t, composerPage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := engine.New(b, composerSelectors, fastConfig(), nil, zap.NewNop())
	_, err := e.AttemptSend(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
