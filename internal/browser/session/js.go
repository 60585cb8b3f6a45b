// File: internal/browser/session/js.go
// JavaScript fragments evaluated on the live page. Everything that reads or
// writes an element addresses it by XPath, because the engine works against
// serialized snapshots and XPath expressions are the only stable handle it
// can pass back.
package session

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsEncode serializes a Go value into a JS literal.
func jsEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only reachable for unmarshalable types, which these helpers never
		// pass.
		return "null"
	}
	return string(b)
}

// jsResolve is the shared XPath-to-element prologue. It leaves `el` in scope
// or throws.
const jsResolve = `
	const el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) throw new Error('no element for xpath: ' + xp);
`

// annotateScript stamps live-page facts onto interactive elements before a
// snapshot is serialized: computed visibility (the parsed snapshot has no
// layout) and the current input value (serialized HTML does not reflect
// .value). The attribute names must match the engine's annotation constants.
const annotateScript = `(() => {
	const VIS = 'data-rk-vis', VAL = 'data-rk-value';
	const sel = 'button, input, textarea, select, form, a, [role="button"], [onclick], [contenteditable="true"]';
	for (const el of document.querySelectorAll(sel)) {
		let visible = el.getClientRects().length > 0;
		if (visible) {
			const cs = window.getComputedStyle(el);
			visible = cs.display !== 'none' && cs.visibility !== 'hidden' && parseFloat(cs.opacity) !== 0;
		}
		el.setAttribute(VIS, visible ? '1' : '0');
		if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
			el.setAttribute(VAL, el.value);
		} else if (el.isContentEditable) {
			el.setAttribute(VAL, el.innerText);
		}
	}
	return true;
})()`

// mutationObserverScript installs a debounced MutationObserver reporting
// through the named CDP binding. Idempotent per document.
func mutationObserverScript(binding string, debounceMS int64) string {
	return fmt.Sprintf(`(() => {
	if (window.__rkObserverInstalled) { return true; }
	window.__rkObserverInstalled = true;
	let timer = null;
	const observer = new MutationObserver(() => {
		if (timer !== null) { return; }
		timer = setTimeout(() => {
			timer = null;
			window[%s]('batch');
		}, %d);
	});
	observer.observe(document.documentElement, {
		childList: true, subtree: true, attributes: true, characterData: true
	});
	return true;
})()`, jsEncode(binding), debounceMS)
}

// mouseEventScript fires the synthetic mouse event sequence on the element.
// These events are untrusted (isTrusted=false), which some handlers accept
// and some ignore; that is exactly why it is a separate strategy from the
// CDP-level click.
func mouseEventScript(xpath string) string {
	return fmt.Sprintf(`((xp) => {%s
	const opts = { bubbles: true, cancelable: true, view: window };
	for (const type of ['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click']) {
		el.dispatchEvent(new MouseEvent(type, opts));
	}
	return true;
})(%s)`, jsResolve, jsEncode(xpath))
}

// invokeScript calls the element's native click() activation.
func invokeScript(xpath string) string {
	return fmt.Sprintf(`((xp) => {%s
	el.click();
	return true;
})(%s)`, jsResolve, jsEncode(xpath))
}

// submitScript submits the element's owning form, preferring requestSubmit
// so submit handlers and validation still run.
func submitScript(xpath string) string {
	return fmt.Sprintf(`((xp) => {%s
	const form = el.form || el.closest('form');
	if (!form) throw new Error('element has no owning form');
	if (form.requestSubmit) { form.requestSubmit(); } else { form.submit(); }
	return true;
})(%s)`, jsResolve, jsEncode(xpath))
}

// setTextScript writes the text into a value-carrying or contenteditable
// element and fires the input/change events frameworks listen for.
func setTextScript(xpath, text string) string {
	return fmt.Sprintf(`((xp, text) => {%s
	if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
		const proto = el instanceof HTMLInputElement ? HTMLInputElement.prototype : HTMLTextAreaElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
		setter.call(el, text);
	} else if (el.isContentEditable) {
		el.innerText = text;
	} else {
		throw new Error('element cannot accept text input');
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`, jsResolve, jsEncode(xpath), jsEncode(text))
}

// clipboardScript writes the text through the async clipboard API.
func clipboardScript(text string) string {
	return fmt.Sprintf(`navigator.clipboard.writeText(%s).then(() => true)`, jsEncode(text))
}
