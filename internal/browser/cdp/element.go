// internal/browser/cdp/element.go
package cdp

import (
	"context"
	"fmt"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/regflow/internal/browser"
)

// Element is a DOM node handle bound to the page it was found on.
type Element struct {
	page *Page
	node *cdpproto.Node
}

var _ browser.Element = (*Element)(nil)

func (e *Element) ids() []cdpproto.NodeID { return []cdpproto.NodeID{e.node.NodeID} }

func (e *Element) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel, err := e.page.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Click dispatches a real mouse click at the centre of the node.
func (e *Element) Click(ctx context.Context) error {
	if err := e.run(ctx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("click on <%s> failed: %w", e.node.LocalName, err)
	}
	return nil
}

// SendText focuses the node and types text as key events.
func (e *Element) SendText(ctx context.Context, text string) error {
	if err := e.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("typing into <%s> failed: %w", e.node.LocalName, err)
	}
	return nil
}

// Clear empties the node's value and fires the input events frameworks listen for.
func (e *Element) Clear(ctx context.Context) error {
	if err := e.run(ctx, chromedp.Clear(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("clearing <%s> failed: %w", e.node.LocalName, err)
	}
	return nil
}

// ReadAttribute reads the live JavaScript value for "value", which reflects what the
// user typed, and the DOM attribute for any other name.
func (e *Element) ReadAttribute(ctx context.Context, name string) (string, bool, error) {
	var value string
	if name == "value" {
		if err := e.run(ctx, chromedp.Value(e.ids(), &value, chromedp.ByNodeID)); err != nil {
			return "", false, fmt.Errorf("reading value failed: %w", err)
		}
		return value, true, nil
	}

	var ok bool
	if err := e.run(ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, fmt.Errorf("reading attribute %q failed: %w", name, err)
	}
	return value, ok, nil
}

// IsVisible reports whether the node has a rendered, non-empty box. Nodes that are
// display:none have no box model at all.
func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(c)
		if err != nil {
			visible = false
			return nil
		}
		visible = box.Width > 0 && box.Height > 0
		return nil
	}))
	if err != nil {
		return false, fmt.Errorf("visibility check failed: %w", err)
	}
	return visible, nil
}

// Text returns the rendered text content of the node.
func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.run(ctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("reading text failed: %w", err)
	}
	return text, nil
}
