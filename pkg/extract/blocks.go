package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	blockCase     = "case"
	blockDial     = "dial"
	blockBracelet = "bracelet"
	blockMovement = "movement"

	fragmentCap     = 300
	rawCap          = 1500
	headingMaxChars = 60
)

// heading text -> block name
var blockHeadings = map[string]string{
	"case":     blockCase,
	"dial":     blockDial,
	"bracelet": blockBracelet,
	"strap":    blockBracelet,
	"movement": blockMovement,
}

// prefix matches ("Movement: calibre 4302") are only trusted on heading-like tags
var prefixHeadingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"dt": true, "th": true, "button": true, "summary": true, "strong": true, "b": true,
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "template": true, "iframe": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "dt": true, "dd": true,
	"tr": true, "td": true, "th": true, "br": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var fragmentSplitRe = regexp.MustCompile(`[.!?](?:\s+|$)|[;•·▪●\n]`)

// specBlock is a technical section of the product page.
type specBlock struct {
	Name      string
	Heading   string
	Raw       string
	Fragments []string
	Images    []string
}

// Text joins the block's sentence fragments.
func (b *specBlock) Text() string {
	if b == nil {
		return ""
	}
	return strings.Join(b.Fragments, "; ")
}

// textUpTo returns the collapsed text of n, or ok=false once it grows past limit.
func textUpTo(n *html.Node, limit int) (string, bool) {
	var sb strings.Builder
	over := false
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if over {
			return
		}
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
			if sb.Len() > limit*4 {
				over = true
			}
			return
		case html.ElementNode:
			if skippedTags[c.Data] {
				return
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	if over {
		return "", false
	}
	t := strings.Join(strings.Fields(sb.String()), " ")
	if len(t) > limit {
		return "", false
	}
	return t, true
}

// headingName reports which block n introduces, if any.
func headingName(n *html.Node) (name, text string) {
	if n.Type != html.ElementNode || skippedTags[n.Data] {
		return "", ""
	}
	raw, ok := textUpTo(n, headingMaxChars)
	if !ok || raw == "" {
		return "", ""
	}
	t := strings.TrimRight(strings.ToLower(raw), ": ")
	if b, ok := blockHeadings[t]; ok {
		return b, raw
	}
	if prefixHeadingTags[n.Data] && strings.HasPrefix(t, "movement") {
		return blockMovement, raw
	}
	return "", ""
}

// nextNode is a pre-order successor, optionally skipping n's subtree.
func nextNode(n *html.Node, skipChildren bool) *html.Node {
	if !skipChildren && n.FirstChild != nil {
		return n.FirstChild
	}
	for n != nil {
		if n.NextSibling != nil {
			return n.NextSibling
		}
		n = n.Parent
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var sectionHeadingTags = map[string]bool{"h1": true, "h2": true, "h3": true}

// sectionBoundary reports whether n starts a new page section: a top level
// heading or a short related products title in any element.
func sectionBoundary(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if sectionHeadingTags[n.Data] {
		return true
	}
	t, ok := textUpTo(n, headingMaxChars)
	return ok && t != "" && isRelatedHeading(t)
}

// collectBlock walks forward from the heading until the next known heading,
// a section boundary or the raw cap, recording text with newlines at block
// element boundaries.
func collectBlock(name string, heading *html.Node, headingText string) *specBlock {
	b := &specBlock{Name: name, Heading: headingText}
	var raw strings.Builder

	for cur := nextNode(heading, true); cur != nil && raw.Len() < rawCap; {
		switch cur.Type {
		case html.ElementNode:
			if skippedTags[cur.Data] {
				cur = nextNode(cur, true)
				continue
			}
			if other, _ := headingName(cur); other != "" || sectionBoundary(cur) {
				cur = nil
				continue
			}
			if cur.Data == "img" {
				src := BestFromSrcset(attr(cur, "srcset"))
				if src == "" {
					src = attr(cur, "data-src")
				}
				if src == "" {
					src = attr(cur, "src")
				}
				if src != "" {
					b.Images = append(b.Images, src)
				}
			}
			if blockTags[cur.Data] {
				raw.WriteByte('\n')
			}
		case html.TextNode:
			if t := strings.Join(strings.Fields(cur.Data), " "); t != "" {
				raw.WriteString(t)
				raw.WriteByte(' ')
			}
		}
		cur = nextNode(cur, false)
	}

	b.Raw = raw.String()
	b.Fragments = splitFragments(b.Raw, fragmentCap, 0)
	return b
}

// splitFragments splits text into deduplicated sentence-like pieces until
// total length reaches capTotal. Pieces longer than capEach are dropped when
// capEach > 0.
func splitFragments(text string, capTotal, capEach int) []string {
	out := []string{}
	seen := map[string]bool{}
	total := 0
	for _, f := range fragmentSplitRe.Split(text, -1) {
		f = strings.Trim(strings.Join(strings.Fields(f), " "), " ,:-–")
		if len(f) < 2 {
			continue
		}
		if capEach > 0 && len(f) > capEach {
			continue
		}
		key := strings.ToLower(f)
		if seen[key] {
			continue
		}
		if capTotal > 0 && total >= capTotal {
			break
		}
		seen[key] = true
		out = append(out, f)
		total += len(f)
	}
	return out
}

// findBlocks locates the first heading of every known block in document order.
func findBlocks(doc *goquery.Document) map[string]*specBlock {
	found := map[string]*specBlock{}
	if len(doc.Nodes) == 0 {
		return found
	}
	for cur := doc.Nodes[0]; cur != nil; {
		if cur.Type == html.ElementNode && skippedTags[cur.Data] {
			cur = nextNode(cur, true)
			continue
		}
		if name, text := headingName(cur); name != "" {
			if _, seen := found[name]; !seen {
				found[name] = collectBlock(name, cur, text)
			}
			cur = nextNode(cur, true)
			continue
		}
		cur = nextNode(cur, false)
	}
	return found
}
