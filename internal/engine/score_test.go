package engine_test

import (
	"strings"
	"testing"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/engine"
)

// candidateFromHTML parses a fragment and returns a candidate for the first
// node matching the XPath.
func candidateFromHTML(t *testing.T, src, xp string) *engine.Candidate {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(src))
	require.NoError(t, err)
	node := htmlquery.FindOne(doc, xp)
	require.NotNil(t, node, "fixture must contain %s", xp)
	return engine.NewCandidate(node, 0)
}

func TestScoreSendCandidateDeterministic(t *testing.T) {
	c := candidateFromHTML(t, `<html><body><button class="send-btn">送信</button></body></html>`, "//button")
	first := engine.ScoreSendCandidate(c)
	second := engine.ScoreSendCandidate(c)
	assert.Equal(t, first, second)
	assert.Positive(t, first)
}

func TestScoreSendCandidatePositiveSignals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		xp   string
		want int
	}{
		{
			name: "exact send text on default-type button",
			src:  `<html><body><button>send</button></body></html>`,
			xp:   "//button",
			// +15 exact, +10 submit-type default, +8 partial
			want: 33,
		},
		{
			name: "japanese exact send",
			src:  `<html><body><button type="button">送信</button></body></html>`,
			xp:   "//button",
			// +15 exact, +8 partial; explicit type=button is not submit-type
			want: 23,
		},
		{
			name: "submit input with send value",
			src:  `<html><body><input type="submit" value="送信"></body></html>`,
			xp:   "//input",
			want: 33,
		},
		{
			name: "class hint only",
			src:  `<html><body><div role="button" class="send-message">→</div></body></html>`,
			xp:   "//div",
			// +6 class send/submit, +10 message+send co-occur in class
			want: 16,
		},
		{
			name: "message and send co-occur in text",
			src:  `<html><body><button type="button">メッセージを送信</button></body></html>`,
			xp:   "//button",
			// +8 partial, +12 co-occurrence; not an exact match
			want: 20,
		},
		{
			name: "generic post wording",
			src:  `<html><body><button type="button">投稿</button></body></html>`,
			xp:   "//button",
			want: 3,
		},
		{
			name: "primary styling hint",
			src:  `<html><body><button type="button" class="btn-primary">OK</button></body></html>`,
			xp:   "//button",
			// +2 primary hint only ("btn-primary" has no send/submit substring)
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidateFromHTML(t, tt.src, tt.xp)
			assert.Equal(t, tt.want, engine.ScoreSendCandidate(c))
		})
	}
}

func TestFileVetoIsAbsolute(t *testing.T) {
	tests := []struct {
		name string
		src  string
		xp   string
	}{
		{
			name: "explicit file input",
			src:  `<html><body><input type="file" value="送信"></body></html>`,
			xp:   "//input",
		},
		{
			name: "file wording in text beats send wording",
			src:  `<html><body><button>ファイルを送信</button></body></html>`,
			xp:   "//button",
		},
		{
			name: "upload wording in class",
			src:  `<html><body><button class="upload-trigger">送信</button></body></html>`,
			xp:   "//button",
		},
		{
			name: "file input descendant",
			src:  `<html><body><button>送信<input type="file"></button></body></html>`,
			xp:   "//button",
		},
		{
			name: "file input sibling",
			src:  `<html><body><div><button>送信</button><input type="file"></div></body></html>`,
			xp:   "//button",
		},
		{
			name: "attach keyword in id",
			src:  `<html><body><button id="attach-go">送信</button></body></html>`,
			xp:   "//button",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidateFromHTML(t, tt.src, tt.xp)
			assert.Equal(t, engine.FileVetoScore, engine.ScoreSendCandidate(c))
		})
	}
}

func TestNegativeSignalsCompound(t *testing.T) {
	// btn-submit class scores positive signals, but cancel wording and the
	// disabled attribute must drag the total negative.
	c := candidateFromHTML(t,
		`<html><body><button class="btn-submit" disabled>キャンセル</button></body></html>`,
		"//button")
	score := engine.ScoreSendCandidate(c)
	assert.Negative(t, score)
	assert.Greater(t, score, engine.FileVetoScore, "cancel wording is a penalty, not the file veto")
}

func TestDisabledPenalty(t *testing.T) {
	enabled := candidateFromHTML(t, `<html><body><button>送信</button></body></html>`, "//button")
	disabled := candidateFromHTML(t, `<html><body><button disabled>送信</button></body></html>`, "//button")
	assert.Equal(t, engine.ScoreSendCandidate(enabled)-20, engine.ScoreSendCandidate(disabled))
}

// FuzzScoreSendCandidate checks that scoring is deterministic and the file
// veto holds for arbitrary attribute soup.
func FuzzScoreSendCandidate(f *testing.F) {
	f.Add([]byte("send button fixture"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzzheaders.NewConsumer(data)
		text, err := consumer.GetString()
		if err != nil {
			return
		}
		class, err := consumer.GetString()
		if err != nil {
			return
		}
		fileInput, err := consumer.GetBool()
		if err != nil {
			return
		}

		node := &html.Node{Type: html.ElementNode, Data: "button"}
		node.Attr = []html.Attribute{{Key: "class", Val: class}}
		node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		if fileInput {
			node.AppendChild(&html.Node{
				Type: html.ElementNode,
				Data: "input",
				Attr: []html.Attribute{{Key: "type", Val: "file"}},
			})
		}

		c := engine.NewCandidate(node, 0)
		first := engine.ScoreSendCandidate(c)
		second := engine.ScoreSendCandidate(c)
		if first != second {
			t.Fatalf("scoring not deterministic: %d then %d", first, second)
		}
		if fileInput && first != engine.FileVetoScore {
			t.Fatalf("file input descendant must veto, got %d", first)
		}
	})
}
