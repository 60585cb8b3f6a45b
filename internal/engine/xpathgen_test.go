package engine_test

import (
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/replykit/internal/engine"
)

func TestUniqueXPathAnchorsOnID(t *testing.T) {
	root := parseHTML(t, `<html><body><div><button id="send">送信</button></div></body></html>`)
	n := htmlquery.FindOne(root, `//button`)
	assert.Equal(t, `//*[@id='send']`, engine.UniqueXPath(n))
}

func TestUniqueXPathUsesNearestAncestorID(t *testing.T) {
	root := parseHTML(t, `<html><body>
		<div id="toolbar"><span><button>a</button><button>b</button></span></div>
	</body></html>`)
	n := htmlquery.FindOne(root, `//button[text()='b']`)
	xp := engine.UniqueXPath(n)
	assert.Contains(t, xp, `@id='toolbar'`)
	assert.Contains(t, xp, `button[2]`)
}

func TestUniqueXPathPositionalFallback(t *testing.T) {
	root := parseHTML(t, `<html><body>
		<div><button>a</button></div>
		<div><button>b</button></div>
	</body></html>`)
	n := htmlquery.FindOne(root, `//button[text()='b']`)
	assert.Equal(t, `/html[1]/body[1]/div[2]/button[1]`, engine.UniqueXPath(n))
}

// Round trip: the generated expression must resolve back to the same node
// in the same document.
func TestUniqueXPathRoundTrip(t *testing.T) {
	src := `<html><body>
		<div id="a"><button>one</button><button>two</button></div>
		<form><input type="text"><input type="submit" value="go"></form>
		<section><p><span role="button">click</span></p></section>
	</body></html>`
	root := parseHTML(t, src)

	for _, sel := range []string{
		`//button[text()='two']`,
		`//input[@type='submit']`,
		`//span[@role='button']`,
	} {
		n := htmlquery.FindOne(root, sel)
		require.NotNil(t, n, sel)
		back := htmlquery.FindOne(root, engine.UniqueXPath(n))
		assert.Same(t, n, back, "round trip for %s", sel)
	}
}
