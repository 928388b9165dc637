// Package browser drives a single Chrome instance through chromedp. A Session
// is exclusive to one harvest run and must be closed when the run ends.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// IndexAttr is stamped on every anchor by Snapshot so parsed HTML can be
// mapped back to live DOM nodes.
const IndexAttr = "data-harvest-index"

// Options configures the Chrome process.
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
}

// Session is a live browser tab plus its allocator.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// Launch starts Chrome and opens the primary tab.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...,
	)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-popup-blocking", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{ctx: tabCtx, cancel: tabCancel, allocCancel: allocCancel}

	// The first Run allocates the browser and ties it to the context it is
	// given, so it must run on the tab context itself.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx, network.Enable())
	stop()
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	zap.L().Info("browser: session started", zap.Bool("headless", opts.Headless))
	return s, nil
}

// Close shuts the tab and the Chrome process. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
		zap.L().Info("browser: session closed")
	})
	return nil
}

// run executes actions on the primary tab, bounded by the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url in the primary tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

// Location returns the current URL of the primary tab.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", eris.Wrap(err, "browser: location")
	}
	return loc, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", eris.Wrap(err, "browser: title")
	}
	return title, nil
}

// PageSource returns the serialized DOM of the current page.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: page source")
	}
	return html, nil
}

const stampAnchorsJS = `(() => {
	const anchors = document.querySelectorAll('a');
	anchors.forEach((a, i) => a.setAttribute('` + IndexAttr + `', String(i)));
	return anchors.length;
})()`

// Snapshot stamps each anchor with IndexAttr and returns the page HTML.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	var count int
	var html string
	err := s.run(ctx,
		chromedp.Evaluate(stampAnchorsJS, &count),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", eris.Wrap(err, "browser: snapshot")
	}
	zap.L().Debug("browser: snapshot taken", zap.Int("anchors", count))
	return html, nil
}

// CheckFilter ticks the first checkbox whose parent label text contains label
// (case-insensitive). It reports whether a checkbox was clicked.
func (s *Session) CheckFilter(ctx context.Context, label string) (bool, error) {
	js := fmt.Sprintf(`(() => {
	const want = %q.toLowerCase();
	for (const box of document.querySelectorAll('input[type="checkbox"]')) {
		const parent = box.parentElement;
		if (parent && parent.textContent.toLowerCase().includes(want)) {
			if (!box.checked) { box.click(); }
			return true;
		}
	}
	return false;
})()`, label)

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, eris.Wrap(err, "browser: check filter")
	}
	return clicked, nil
}

// lateTabGrace bounds how long a timed-out OpenInNewTab keeps watching for
// a tab that opens after the caller gave up.
const lateTabGrace = 10 * time.Second

// OpenInNewTab clicks the stamped anchor, waits up to wait for a new tab,
// lets it settle, and returns its URL. Whatever the outcome the new tab is
// closed and the primary tab brought back to front; a tab that only opens
// after the wait is closed when it appears.
func (s *Session) OpenInNewTab(ctx context.Context, anchorIndex int, wait, settle time.Duration) (string, error) {
	listenCtx, stopListening := context.WithCancel(s.ctx)
	newTab := chromedp.WaitNewTarget(listenCtx, func(info *target.Info) bool {
		return info.Type == "page"
	})
	opened := false
	defer func() {
		if opened {
			stopListening()
		} else {
			go s.closeLateTab(newTab, stopListening)
		}
		s.focusPrimary()
	}()

	if err := s.clickAnchor(ctx, anchorIndex); err != nil {
		return "", err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var id target.ID
	select {
	case id = <-newTab:
	case <-timer.C:
		return "", eris.Errorf("browser: no new tab within %s", wait)
	case <-ctx.Done():
		return "", eris.Wrap(ctx.Err(), "browser: wait for new tab")
	}
	opened = true
	return s.readTab(id, settle)
}

func clickAnchorJS(anchorIndex int) string {
	return fmt.Sprintf(`(() => {
	const a = document.querySelector('a[%s="%d"]');
	if (!a) { return false; }
	a.click();
	return true;
})()`, IndexAttr, anchorIndex)
}

// clickAnchor dispatches a DOM click, so hidden or collapsed anchors work
// too.
func (s *Session) clickAnchor(ctx context.Context, anchorIndex int) error {
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(clickAnchorJS(anchorIndex), &found)); err != nil {
		return eris.Wrapf(err, "browser: click anchor %d", anchorIndex)
	}
	if !found {
		return eris.Errorf("browser: anchor %d not on page", anchorIndex)
	}
	return nil
}

// readTab reads the URL of tab id after settle and closes it.
func (s *Session) readTab(id target.ID, settle time.Duration) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
	defer func() {
		if err := chromedp.Run(tabCtx, page.Close()); err != nil {
			zap.L().Debug("browser: close new tab", zap.Error(err))
		}
		tabCancel()
	}()

	var loc string
	if err := chromedp.Run(tabCtx, chromedp.Sleep(settle), chromedp.Location(&loc)); err != nil {
		return "", eris.Wrap(err, "browser: read new tab location")
	}
	return loc, nil
}

// closeLateTab waits up to lateTabGrace for a tab the listener still
// delivers, closes it, and then stops the listener.
func (s *Session) closeLateTab(newTab <-chan target.ID, stopListening context.CancelFunc) {
	defer stopListening()

	grace := time.NewTimer(lateTabGrace)
	defer grace.Stop()

	select {
	case id, ok := <-newTab:
		if !ok {
			return
		}
		tabCtx, tabCancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
		if err := chromedp.Run(tabCtx, page.Close()); err != nil {
			zap.L().Debug("browser: close late tab", zap.Error(err))
		}
		tabCancel()
		zap.L().Info("browser: closed tab that opened after the wait", zap.String("target", string(id)))
		s.focusPrimary()
	case <-grace.C:
	case <-s.ctx.Done():
	}
}

func (s *Session) focusPrimary() {
	if err := s.run(context.Background(), page.BringToFront()); err != nil {
		zap.L().Debug("browser: bring primary tab to front", zap.Error(err))
	}
}

const userAgentJS = `navigator.userAgent`

// Export captures the cookies and user agent of the current page so an HTTP
// client can replay the session.
func (s *Session) Export(ctx context.Context) (*Export, error) {
	var cookies []*network.Cookie
	var ua string
	err := s.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(userAgentJS, &ua),
	)
	if err != nil {
		return nil, eris.Wrap(err, "browser: export session")
	}
	return &Export{Cookies: CookiesFromCDP(cookies), UserAgent: ua}, nil
}
