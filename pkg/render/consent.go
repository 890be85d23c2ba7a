package render

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

// frameConsentSelectors are tried inside cross-origin frames, where the page
// script cannot reach.
var frameConsentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#didomi-notice-agree-button",
	"button[title='Accept']",
	"button[title='Accept all']",
	"button[aria-label*='Accept']",
	".message-component.sp_choice_type_11",
}

// DismissConsent clicks a cookie consent control if one shows up within the
// session's consent timeout. It gives up early when the page has no consent
// container and no frames. A missing banner is not an error.
func DismissConsent(ctx context.Context, p *Page) bool {
	deadline := time.Now().Add(p.session.opts.ConsentTimeout)
	for attempt := 0; time.Now().Before(deadline); attempt++ {
		var state string
		if err := p.Evaluate(ctx, consentJS, &state); err != nil {
			log.Debugf("consent probe on %s failed: %v", p.URL, err)
			state = "pending"
		}
		switch state {
		case "clicked":
			log.Debugf("consent dismissed on %s", p.URL)
			if err := p.SaveState(ctx); err != nil {
				log.Debugf("failed to save storage state: %v", err)
			}
			return true
		case "absent":
			if attempt >= 2 {
				return false
			}
		}

		if p.clickInFrames(ctx) {
			log.Debugf("consent dismissed inside a frame on %s", p.URL)
			if err := p.SaveState(ctx); err != nil {
				log.Debugf("failed to save storage state: %v", err)
			}
			return true
		}
		if err := sleep(ctx, 500*time.Millisecond); err != nil {
			return false
		}
	}
	return false
}

func (p *Page) clickInFrames(ctx context.Context) bool {
	var frames []*cdp.Node
	if err := p.run(ctx, 3*time.Second, chromedp.Nodes("iframe", &frames, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false
	}
	for _, frame := range frames {
		if frame.ContentDocument == nil {
			continue
		}
		for _, sel := range frameConsentSelectors {
			var buttons []*cdp.Node
			err := p.run(ctx, 2*time.Second,
				chromedp.Nodes(sel, &buttons, chromedp.ByQuery, chromedp.AtLeast(0), chromedp.FromNode(frame.ContentDocument)))
			if err != nil || len(buttons) == 0 {
				continue
			}
			if err := p.run(ctx, 5*time.Second, chromedp.MouseClickNode(buttons[0])); err == nil {
				return true
			}
		}
	}
	return false
}
