// File: internal/engine/score.go
// Heuristic scoring of send-control candidates.
//
// This is deliberately a flat weighted-keyword heuristic, not a classifier.
// The weights are tuned for the four hard-coded target sites, which operate
// in a Japanese locale, so the keyword tables carry both English and
// Japanese wording. Expect per-site tuning over time.
package engine

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// FileVetoScore is the disqualifying sentinel for file-upload-related
// controls. The veto is absolute: such controls must never be mistaken for
// the message-send action, whatever positive signals they also carry.
const FileVetoScore = -1000

var (
	// Exact-match send wording in text or value.
	sendExactWords = []string{"send", "送信", "送信する", "submit"}
	// Partial-match send wording.
	sendPartialWords = []string{"send", "送信", "送る"}
	// Message wording, for the message+send co-occurrence bonus.
	messageWords = []string{"message", "msg", "メッセージ"}
	// Generic posting wording.
	postWords = []string{"post", "投稿", "reply", "返信"}
	// Primary-action styling hints.
	primaryHints = []string{"primary", "cta", "main-action"}
	// Cancel/delete wording.
	cancelWords = []string{"cancel", "キャンセル", "delete", "削除", "discard", "破棄"}
	// File/attachment/upload wording. Triggers the absolute veto when seen
	// in text, class, id, or inline handlers.
	fileWords = []string{
		"file", "upload", "attach", "browse",
		"ファイル", "添付", "アップロード", "参照",
		"choose file", "select file", "ファイルを選択",
	}
)

// ScoreSendCandidate assigns the heuristic confidence that the candidate is
// the message-send control. Deterministic and stateless: the same unchanged
// node always scores the same. Higher is more likely; FileVetoScore means
// never.
func ScoreSendCandidate(c *Candidate) int {
	if c == nil || c.Node == nil {
		return FileVetoScore
	}

	if isFileRelated(c) {
		return FileVetoScore
	}

	text := strings.ToLower(c.Text)
	value := strings.ToLower(c.Attr("value"))
	class := strings.ToLower(c.Attr("class"))
	id := strings.ToLower(c.Attr("id"))

	score := 0

	if matchesExact(text, sendExactWords) || matchesExact(value, sendExactWords) {
		score += 15
	}
	if isSubmitControl(c) {
		score += 10
	}
	if containsAny(text, sendPartialWords) || containsAny(value, sendPartialWords) {
		score += 8
	}
	if containsAny(class, []string{"send", "submit"}) || containsAny(id, []string{"send", "submit"}) {
		score += 6
	}
	if containsAny(text, messageWords) && containsAny(text, sendPartialWords) {
		score += 12
	}
	if containsAny(class, messageWords) && containsAny(class, []string{"send", "submit"}) {
		score += 10
	}
	if containsAny(text, postWords) || containsAny(value, postWords) {
		score += 3
	}
	if containsAny(class, primaryHints) {
		score += 2
	}

	// Negative signals compound; none short-circuits.
	if containsAny(text, cancelWords) || containsAny(value, cancelWords) {
		score -= 10
	}
	// Redundant with the veto above, kept as defense in depth.
	if containsAny(text, fileWords) || containsAny(class, fileWords) {
		score -= 15
	}
	if c.HasAttr("disabled") {
		score -= 20
	}

	return score
}

// isFileRelated detects file/attachment/upload controls: explicit file
// inputs, upload wording anywhere identifying, or a file input sitting next
// to or inside the candidate.
func isFileRelated(c *Candidate) bool {
	if strings.EqualFold(c.Attr("type"), "file") {
		return true
	}

	haystacks := []string{
		strings.ToLower(c.Text),
		strings.ToLower(c.Attr("class")),
		strings.ToLower(c.Attr("id")),
		strings.ToLower(c.Attr("onclick")),
		strings.ToLower(c.Attr("aria-label")),
		strings.ToLower(c.Attr("title")),
	}
	for _, h := range haystacks {
		if containsAny(h, fileWords) {
			return true
		}
	}

	// Descendant file input.
	if n := htmlquery.FindOne(c.Node, ".//input[@type='file']"); n != nil {
		return true
	}

	// Sibling file input.
	if parent := c.Node.Parent; parent != nil {
		for sib := parent.FirstChild; sib != nil; sib = sib.NextSibling {
			if sib == c.Node || sib.Type != html.ElementNode {
				continue
			}
			if strings.EqualFold(sib.Data, "input") &&
				strings.EqualFold(htmlquery.SelectAttr(sib, "type"), "file") {
				return true
			}
		}
	}

	return false
}

// isSubmitControl reports a submit-type control: type=submit, or a <button>
// with no explicit type (the HTML default is submit).
func isSubmitControl(c *Candidate) bool {
	typ := strings.ToLower(c.Attr("type"))
	if typ == "submit" {
		return true
	}
	return c.Tag == "button" && typ == ""
}

func matchesExact(s string, words []string) bool {
	s = strings.TrimSpace(s)
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	if s == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
