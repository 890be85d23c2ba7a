package render

import (
	"encoding/json"
	"strings"

	"watch-harvest/pkg/extract"
)

const hrefsJS = `Array.from(document.querySelectorAll("a[href]"), a => a.getAttribute("href") || "")`

// scrollStepJS scrolls to the bottom and clicks visible, enabled controls
// whose label looks like "load more". It returns the number of clicks.
const scrollStepJS = `(() => {
	window.scrollTo(0, document.documentElement.scrollHeight);
	const re = /^\s*(load more|show more|view more|see more|more results|afficher plus|voir plus|mehr anzeigen|mehr laden|carica altri|ver más)\b/i;
	let clicked = 0;
	for (const el of document.querySelectorAll("button, a, [role=button]")) {
		const text = (el.innerText || el.getAttribute("aria-label") || "").trim();
		if (!text || text.length > 40 || !re.test(text)) continue;
		if (el.disabled || el.getAttribute("aria-disabled") === "true") continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		if (el.tagName === "A" && /^https?:/.test(el.getAttribute("href") || "")) continue;
		el.click();
		clicked++;
	}
	return clicked;
})()`

// consentJS looks for a consent banner in the document and every same-origin
// frame. It returns "clicked", "absent" or "pending".
const consentJS = `(() => {
	const selectors = [
		"#onetrust-accept-btn-handler",
		"#didomi-notice-agree-button",
		"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
		"#CybotCookiebotDialogBodyButtonAccept",
		"#truste-consent-button",
		".fc-cta-consent",
		"[data-testid=uc-accept-all-button]",
		"button[id*=accept-all]",
		"button[class*=accept-all]",
		"[data-cookie-accept]",
	];
	const texts = /^\s*(accept all( cookies)?|accept( cookies)?|allow all( cookies)?|agree|i agree|i accept|ok(, got it)?|got it|tout accepter|accepter|alle akzeptieren|akzeptieren|accetta tutti|aceptar todo)\s*$/i;
	const containers = "[id*=consent], [class*=consent], [id*=cookie], [class*=cookie], [id*=onetrust], [id*=didomi], [aria-label*=cookie i], [aria-label*=consent i]";

	const docs = [document];
	for (const f of document.querySelectorAll("iframe")) {
		try { if (f.contentDocument) docs.push(f.contentDocument); } catch (e) {}
	}
	const visible = el => {
		const r = el.getBoundingClientRect();
		const s = el.ownerDocument.defaultView.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== "hidden" && s.display !== "none";
	};

	let present = false;
	for (const doc of docs) {
		if (doc.querySelector(containers)) present = true;
		for (const sel of selectors) {
			const el = doc.querySelector(sel);
			if (el && visible(el)) { el.click(); return "clicked"; }
		}
		for (const el of doc.querySelectorAll("button, [role=button], a")) {
			const t = (el.innerText || "").trim();
			if (t && t.length < 40 && texts.test(t) && visible(el)) { el.click(); return "clicked"; }
		}
	}
	return present || document.querySelectorAll("iframe").length > 0 ? "pending" : "absent";
})()`

// snapshotJS returns an extract.Snapshot as JSON. Coordinates are document
// coordinates. Short non-heading elements titled like a related products
// section are reported as headings too.
var snapshotJS = strings.Replace(snapshotTemplateJS, "__RELATED_PHRASES__", relatedPhrasesJSON(), 1)

func relatedPhrasesJSON() string {
	data, err := json.Marshal(extract.RelatedPhrases())
	if err != nil {
		return "[]"
	}
	return string(data)
}

const snapshotTemplateJS = `(() => {
	const sx = window.scrollX, sy = window.scrollY;
	const box = el => {
		const r = el.getBoundingClientRect();
		return { x: r.left + sx, y: r.top + sy, width: r.width, height: r.height };
	};
	const isVisible = el => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const s = getComputedStyle(el);
		return s.visibility !== "hidden" && s.display !== "none" && parseFloat(s.opacity || "1") > 0.05;
	};
	const clean = t => (t || "").replace(/\s+/g, " ").trim();

	const images = [];
	for (const img of document.images) {
		images.push(Object.assign(box(img), {
			src: img.currentSrc || img.getAttribute("src") || img.getAttribute("data-src") || "",
			srcset: img.getAttribute("srcset") || img.getAttribute("data-srcset") || "",
			alt: img.getAttribute("alt") || "",
			naturalWidth: img.naturalWidth || 0,
			naturalHeight: img.naturalHeight || 0,
			visible: isVisible(img),
		}));
		if (images.length >= 400) break;
	}

	const backgrounds = [];
	const all = document.body ? document.body.getElementsByTagName("*") : [];
	for (let i = 0; i < all.length && i < 5000; i++) {
		const el = all[i];
		const bg = getComputedStyle(el).backgroundImage;
		if (!bg || bg === "none") continue;
		const m = /url\(["']?([^"')]+)["']?\)/.exec(bg);
		if (!m) continue;
		backgrounds.push(Object.assign(box(el), { src: m[1], visible: isVisible(el) }));
		if (backgrounds.length >= 200) break;
	}

	const headings = [];
	for (const el of document.querySelectorAll("h1, h2, h3, h4, h5, h6, [role=heading]")) {
		const text = clean(el.innerText);
		if (!text || text.length > 200) continue;
		headings.push(Object.assign(box(el), { tag: el.tagName.toLowerCase(), text, visible: isVisible(el) }));
	}
	const related = __RELATED_PHRASES__;
	const headingEls = new Set(document.querySelectorAll("h1, h2, h3, h4, h5, h6, [role=heading]"));
	let relatedTitles = 0;
	for (const el of document.querySelectorAll("div, p, span, strong, b, li, [class*=title], [class*=heading]")) {
		if (headingEls.has(el) || el.children.length > 2 || el.closest("nav, header, footer")) continue;
		const text = clean(el.innerText);
		if (!text || text.length > 60) continue;
		const lower = text.toLowerCase();
		if (!related.some(p => lower.includes(p))) continue;
		headings.push(Object.assign(box(el), { tag: el.tagName.toLowerCase(), text, visible: isVisible(el) }));
		if (++relatedTitles >= 50) break;
	}

	const priceBoxes = [];
	const money = /(\d[\d'’.,\s]*\d|\d)\s*(CHF|USD|EUR|GBP|JPY|HKD|SGD|€|£|¥|\$)|(CHF|USD|EUR|GBP|JPY|HKD|SGD|US\$|HK\$|S\$|€|£|¥|\$)\s*\d/;
	for (const el of document.querySelectorAll("span, div, p, strong, b, dd, li, ins, data, [class*=price], [id*=price]")) {
		if (el.children.length > 3) continue;
		const text = clean(el.innerText);
		if (!text || text.length > 60) continue;
		const cls = typeof el.className === "string" ? el.className : "";
		if (!money.test(text) && !/price/i.test(cls + " " + el.id)) continue;
		priceBoxes.push(Object.assign(box(el), { tag: el.tagName.toLowerCase(), text, class: cls, id: el.id || "", visible: isVisible(el) }));
		if (priceBoxes.length >= 200) break;
	}

	return {
		url: location.href,
		title: document.title,
		html: document.documentElement.outerHTML,
		bodyText: document.body ? document.body.innerText : "",
		pageHeight: document.documentElement.scrollHeight,
		viewportWidth: window.innerWidth,
		viewportHeight: window.innerHeight,
		images, backgrounds, headings, priceBoxes,
	};
})()`
