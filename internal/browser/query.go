package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/tabide/pagecheck/internal/types"
)

// TargetAttr marks the element a query resolved to so chromedp can act on it
// with a plain CSS selector.
const TargetAttr = "data-pagecheck-target"

// PollInterval is how often a wait re-evaluates its query
const PollInterval = 100 * time.Millisecond

// roleSelectors maps the implicit ARIA roles the suites use to the elements
// that carry them. Anything else falls back to an explicit role attribute.
var roleSelectors = map[string]string{
	"heading":  `h1,h2,h3,h4,h5,h6,[role="heading"]`,
	"button":   `button,input[type="button"],input[type="submit"],input[type="reset"],[role="button"]`,
	"checkbox": `input[type="checkbox"],[role="checkbox"]`,
	"radio":    `input[type="radio"],[role="radio"]`,
	"link":     `a[href],[role="link"]`,
	"textbox":  `input:not([type]),input[type="text"],input[type="email"],input[type="search"],input[type="tel"],input[type="url"],textarea,[role="textbox"]`,
	"img":      `img[alt],[role="img"]`,
	"dialog":   `dialog,[role="dialog"]`,
}

// jsQuery is the query as the in-page resolver sees it
type jsQuery struct {
	Selector string `json:"selector,omitempty"`
	RoleCSS  string `json:"roleCss,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Text     bool   `json:"text,omitempty"`
	Exact    bool   `json:"exact,omitempty"`
	Regex    bool   `json:"regex,omitempty"`
	Nth      int    `json:"nth"`
}

func toJSQuery(q types.Query) jsQuery {
	jq := jsQuery{Exact: q.Exact, Regex: q.Regex, Nth: q.Nth}
	switch {
	case q.Selector != "":
		jq.Selector = q.Selector
	case q.Role != "":
		css, ok := roleSelectors[q.Role]
		if !ok {
			css = fmt.Sprintf(`[role=%q]`, q.Role)
		}
		jq.RoleCSS = css
		jq.Pattern = q.Name
	default:
		jq.Text = true
		jq.Pattern = q.Text
	}
	return jq
}

// probeResult is what the resolver reports about the chosen element
type probeResult struct {
	Count   int    `json:"count"`
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Checked bool   `json:"checked"`
	Error   string `json:"error,omitempty"`
}

func (r probeResult) describe() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Count == 0:
		return "no element matched"
	case !r.Found:
		return fmt.Sprintf("%d element(s) matched but the requested index is out of range", r.Count)
	case !r.Visible:
		return "element matched but is not visible"
	default:
		return "element is visible"
	}
}

// resolverJS finds the element for a query, optionally tags it with
// TargetAttr, and reports its state. Text queries resolve to the innermost
// element whose text matches. Role queries skip elements that are not
// rendered or sit under aria-hidden before nth is applied.
const resolverJS = `(function(q, mark) {
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	let re = null;
	if (q.regex) {
		try { re = new RegExp(q.pattern); } catch (e) { return {count: 0, found: false, visible: false, checked: false, error: 'invalid regex: ' + e.message}; }
	}
	const matches = (value) => {
		value = norm(value);
		if (re) return re.test(value);
		if (q.exact) return value === norm(q.pattern);
		return value.toLowerCase().includes(norm(q.pattern).toLowerCase());
	};
	const accessibleName = (el) => {
		const label = el.getAttribute('aria-label');
		if (label) return label;
		const labelledBy = el.getAttribute('aria-labelledby');
		if (labelledBy) {
			return labelledBy.split(/\s+/).map((id) => {
				const n = document.getElementById(id);
				return n ? n.textContent : '';
			}).join(' ');
		}
		if (el.labels && el.labels.length) {
			return Array.from(el.labels).map((l) => l.innerText || l.textContent).join(' ');
		}
		if (el.tagName === 'INPUT') return el.value || el.getAttribute('title') || '';
		if (el.tagName === 'IMG') return el.getAttribute('alt') || '';
		// innerText turns <br> into a line break, which norm makes a space
		return el.innerText || el.textContent || el.getAttribute('title') || '';
	};
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0 &&
			style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	};
	// Role queries ignore elements hidden from the accessibility tree
	const hiddenForAria = (el) => {
		if (el.closest('[aria-hidden="true"]')) return true;
		if (typeof el.checkVisibility === 'function') return !el.checkVisibility({visibilityProperty: true});
		return el.getClientRects().length === 0 || window.getComputedStyle(el).visibility === 'hidden';
	};
	const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'HEAD', 'TITLE']);

	let candidates = [];
	try {
		if (q.selector) {
			candidates = Array.from(document.querySelectorAll(q.selector));
		} else if (q.roleCss) {
			candidates = Array.from(document.querySelectorAll(q.roleCss)).filter((el) => !hiddenForAria(el));
			if (q.pattern) candidates = candidates.filter((el) => matches(accessibleName(el)));
		} else if (q.text && document.body) {
			candidates = Array.from(document.body.querySelectorAll('*')).filter((el) =>
				!skip.has(el.tagName) && matches(el.textContent) &&
				!Array.from(el.children).some((c) => !skip.has(c.tagName) && matches(c.textContent)));
		}
	} catch (e) {
		return {count: 0, found: false, visible: false, checked: false, error: e.message};
	}

	const index = q.nth < 0 ? candidates.length + q.nth : q.nth;
	const el = candidates[index];
	if (!el) return {count: candidates.length, found: false, visible: false, checked: false};

	if (mark) {
		document.querySelectorAll('[` + TargetAttr + `]').forEach((n) => n.removeAttribute('` + TargetAttr + `'));
		el.setAttribute('` + TargetAttr + `', mark);
	}
	return {
		count: candidates.length,
		found: true,
		visible: isVisible(el),
		checked: el.checked === true || el.getAttribute('aria-checked') === 'true',
	};
})`

// probeExpression builds the expression that resolves q in the page
func probeExpression(q types.Query, mark string) (string, error) {
	qJSON, err := json.Marshal(toJSQuery(q))
	if err != nil {
		return "", err
	}
	markJSON, err := json.Marshal(mark)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s, %s)", resolverJS, qJSON, markJSON), nil
}

// probe evaluates q once
func probe(ctx context.Context, q types.Query, mark string) (probeResult, error) {
	var res probeResult
	expr, err := probeExpression(q, mark)
	if err != nil {
		return res, err
	}
	if err := chromedp.Evaluate(expr, &res).Do(ctx); err != nil {
		return res, fmt.Errorf("failed to evaluate query %s: %w", q, err)
	}
	if res.Error != "" {
		return res, fmt.Errorf("query %s: %s", q, res.Error)
	}
	return res, nil
}

// waitFor polls q until its visibility equals visible or ctx ends
func waitFor(ctx context.Context, q types.Query, visible bool, mark string) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last probeResult
	for {
		res, err := probe(ctx, q, mark)
		if err == nil {
			last = res
			if res.Visible == visible {
				return nil
			}
		} else if ctx.Err() == nil && res.Error != "" {
			// A broken selector or regex will never resolve
			return err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			want := "visible"
			if !visible {
				want = "hidden"
			}
			return fmt.Errorf("timed out waiting for %s to be %s (%s): %w", q, want, last.describe(), context.Cause(ctx))
		}
	}
}

// waitChecked polls until the element q resolves to reports checked
func waitChecked(ctx context.Context, q types.Query) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		res, err := probe(ctx, q, "")
		if err == nil && res.Checked {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%s did not become checked: %w", q, context.Cause(ctx))
		}
	}
}
