// File: internal/engine/visibility.go
package engine

import (
	"strings"

	"golang.org/x/net/html"
)

// Visible reports whether a snapshot node is meaningfully visible and
// interactive. It combines the bridge's rendered-box annotation with static
// signals readable from the markup itself. Pure; never panics; a nil,
// non-element, or detached node is simply not visible.
func Visible(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}

	var style, visAnno string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return false
		case "type":
			if strings.EqualFold(a.Val, "hidden") {
				return false
			}
		case "style":
			style = strings.ToLower(a.Val)
		case AttrVisible:
			visAnno = a.Val
		}
	}

	if visAnno == "0" {
		return false
	}

	if style != "" {
		style = strings.ReplaceAll(style, " ", "")
		if strings.Contains(style, "display:none") ||
			strings.Contains(style, "visibility:hidden") ||
			strings.Contains(style, "opacity:0;") ||
			strings.HasSuffix(style, "opacity:0") {
			return false
		}
	}

	// No annotation means the bridge did not measure this tree (static
	// fixtures); treat the element as rendered and rely on the static
	// signals above.
	return true
}
