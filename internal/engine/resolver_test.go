package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/dombridge"
	"github.com/xkilldash9x/replykit/internal/engine"
)

func TestMain(m *testing.M) {
	// Mutation subscriptions must never leak goroutines across attempts.
	goleak.VerifyTestMain(m)
}

func newBridge(t *testing.T, src string) *dombridge.Bridge {
	t.Helper()
	b, err := dombridge.New(src)
	require.NoError(t, err)
	return b
}

func parseHTML(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestResolveSelectorPriorityBeatsDocumentOrder(t *testing.T) {
	// The preferred element appears later in the document than the generic
	// one, but its selector comes first in the group and must win.
	root := parseHTML(t, `<html><body>
		<button class="generic">A</button>
		<button id="preferred">B</button>
	</body></html>`)

	r := engine.NewResolver(newBridge(t, "<html></html>"), zap.NewNop())
	c := r.Resolve(root, engine.SelectorGroup{
		`//button[@id='preferred']`,
		`//button[@class='generic']`,
	})
	require.NotNil(t, c)
	assert.Equal(t, "B", c.Text)
}

func TestResolveDocumentOrderTieBreak(t *testing.T) {
	root := parseHTML(t, `<html><body>
		<button class="x">first</button>
		<button class="x">second</button>
	</body></html>`)

	r := engine.NewResolver(newBridge(t, "<html></html>"), zap.NewNop())
	c := r.Resolve(root, engine.SelectorGroup{`//button[@class='x']`})
	require.NotNil(t, c)
	assert.Equal(t, "first", c.Text)
}

func TestResolveSkipsInvisibleMatches(t *testing.T) {
	root := parseHTML(t, `<html><body>
		<button class="x" style="display:none">hidden</button>
		<button class="x" data-rk-vis="0">measured hidden</button>
		<button class="x">visible</button>
	</body></html>`)

	r := engine.NewResolver(newBridge(t, "<html></html>"), zap.NewNop())
	c := r.Resolve(root, engine.SelectorGroup{`//button[@class='x']`})
	require.NotNil(t, c)
	assert.Equal(t, "visible", c.Text)
}

func TestResolveMalformedSelectorSkipped(t *testing.T) {
	root := parseHTML(t, `<html><body><button id="ok">fine</button></body></html>`)

	r := engine.NewResolver(newBridge(t, "<html></html>"), zap.NewNop())
	c := r.Resolve(root, engine.SelectorGroup{
		`//button[@unclosed`, // malformed: logged and skipped, not fatal
		`//button[@id='ok']`,
	})
	require.NotNil(t, c)
	assert.Equal(t, "fine", c.Text)
}

func TestResolveNoMatchReturnsNil(t *testing.T) {
	root := parseHTML(t, `<html><body><p>nothing interactive</p></body></html>`)
	r := engine.NewResolver(newBridge(t, "<html></html>"), zap.NewNop())
	assert.Nil(t, r.Resolve(root, engine.SelectorGroup{`//button`}))
}

func TestResolveAwaitFindsLateInsertedElement(t *testing.T) {
	b := newBridge(t, `<html><body><div id="root"></div></body></html>`)
	r := engine.NewResolver(b, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		b.Apply(func(doc *html.Node) {
			root := htmlquery.FindOne(doc, `//div[@id='root']`)
			root.AppendChild(&html.Node{
				Type: html.ElementNode,
				Data: "button",
				Attr: []html.Attribute{{Key: "id", Val: "late"}},
			})
		})
	}()

	c, err := r.ResolveAwait(context.Background(), engine.SelectorGroup{`//button[@id='late']`}, 2*time.Second)
	<-done
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "button", c.Tag)
}

func TestResolveAwaitTimesOutWithNil(t *testing.T) {
	b := newBridge(t, `<html><body></body></html>`)
	r := engine.NewResolver(b, zap.NewNop())

	start := time.Now()
	c, err := r.ResolveAwait(context.Background(), engine.SelectorGroup{`//button`}, 80*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestResolveAwaitHonorsContextCancellation(t *testing.T) {
	b := newBridge(t, `<html><body></body></html>`)
	r := engine.NewResolver(b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.ResolveAwait(ctx, engine.SelectorGroup{`//button`}, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
