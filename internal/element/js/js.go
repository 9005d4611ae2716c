// Package js holds the JavaScript functions the element layer calls on a node.
// Every definition is evaluated with the node bound to `this`.
package js

import "fmt"

// Function is a named JavaScript function definition.
type Function struct {
	Name       string
	Definition string
}

// OuterHTML serializes the node by cloning it into a detached container.
// It returns null once the node has left its document.
var OuterHTML = &Function{
	Name: "outerHTML",
	Definition: `function() {
		if (!this.isConnected) return null;
		const container = document.createElement("div");
		container.appendChild(this.cloneNode(true));
		return container.innerHTML;
	}`,
}

// GetStyle reads a property of the inline style object.
var GetStyle = &Function{
	Name:       "getStyle",
	Definition: `function(name) { return this.style[name]; }`,
}

// SetStyle writes a property of the inline style object.
var SetStyle = &Function{
	Name:       "setStyle",
	Definition: `function(name, value) { this.style[name] = value; }`,
}

// ComputedStyle reads a property of the computed style.
var ComputedStyle = &Function{
	Name:       "computedStyle",
	Definition: `function(name) { return window.getComputedStyle(this)[name]; }`,
}

// SetAttribute writes an attribute.
var SetAttribute = &Function{
	Name:       "setAttribute",
	Definition: `function(name, value) { this.setAttribute(name, value); }`,
}

// RemoveAttribute deletes an attribute.
var RemoveAttribute = &Function{
	Name:       "removeAttribute",
	Definition: `function(name) { this.removeAttribute(name); }`,
}

// AttributeNames lists attribute names in document order.
var AttributeNames = &Function{
	Name:       "attributeNames",
	Definition: `function() { return Array.from(this.attributes).map(a => a.name); }`,
}

// Matches tests the node against a CSS selector.
var Matches = &Function{
	Name:       "matches",
	Definition: `function(selector) { return this.matches(selector); }`,
}

// TagName returns the lower-cased tag name.
var TagName = &Function{
	Name:       "tagName",
	Definition: `function() { return this.tagName.toLowerCase(); }`,
}

// Text returns the rendered text.
var Text = &Function{
	Name:       "text",
	Definition: `function() { return this.innerText; }`,
}

// IsConnected reports whether the node is still attached to its document.
var IsConnected = &Function{
	Name:       "isConnected",
	Definition: `function() { return this.isConnected; }`,
}

// Simulate dispatches a synthetic DOM event on the node. Only HTMLEvents and
// MouseEvents names are accepted.
var Simulate = &Function{
	Name: "simulate",
	Definition: `function(eventName, options) {
		const kinds = {
			HTMLEvents: /^(?:load|unload|abort|error|select|change|submit|reset|focus|blur|resize|scroll)$/,
			MouseEvents: /^(?:click|dblclick|mouse(?:down|up|over|move|out))$/
		};
		const opts = Object.assign({
			pointerX: 0, pointerY: 0, button: 0,
			ctrlKey: false, altKey: false, shiftKey: false, metaKey: false,
			bubbles: true, cancelable: true
		}, options || {});

		let kind = null;
		for (const name in kinds) {
			if (kinds[name].test(eventName)) { kind = name; break; }
		}
		if (!kind) {
			throw new SyntaxError("unsupported event: " + eventName);
		}

		let ev;
		if (kind === "HTMLEvents") {
			ev = new Event(eventName, { bubbles: opts.bubbles, cancelable: opts.cancelable });
		} else {
			ev = new MouseEvent(eventName, {
				bubbles: opts.bubbles, cancelable: opts.cancelable, view: window,
				button: opts.button,
				screenX: opts.pointerX, screenY: opts.pointerY,
				clientX: opts.pointerX, clientY: opts.pointerY,
				ctrlKey: opts.ctrlKey, altKey: opts.altKey,
				shiftKey: opts.shiftKey, metaKey: opts.metaKey
			});
		}
		this.dispatchEvent(ev);
		return true;
	}`,
}

// Property builds a function returning this.<expr>.
func Property(expr string) *Function {
	return &Function{
		Name:       "this." + expr,
		Definition: fmt.Sprintf("function() { return this.%s; }", expr),
	}
}

// JQuery builds a function returning $(this).<expr>. The page must load jQuery.
func JQuery(expr string) *Function {
	return &Function{
		Name:       "$(this)." + expr,
		Definition: fmt.Sprintf("function() { return $(this).%s; }", expr),
	}
}
