package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"watch-harvest/pkg/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
)

var (
	currencyCodeRe = regexp.MustCompile(`\b(CHF|USD|EUR|GBP|JPY|HKD|SGD|CNY|RMB|AUD|CAD|AED|KRW|TWD|MOP)\b`)
	priceNumberRe  = regexp.MustCompile(`\d{1,3}(?:['’ \x{00A0}\x{202F}.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`)
	priceLikeRe    = regexp.MustCompile(`(?i)price|prix|preis|prezzo|amount`)
)

// multi-character symbols first so "HK$" does not read as plain dollars
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"HK$", "HKD"},
	{"S$", "SGD"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₩", "KRW"},
}

type priceSource string

const (
	priceFromMeta    priceSource = "meta"
	priceFromJSONLD  priceSource = "json-ld"
	priceFromText    priceSource = "text"
	priceNotResolved priceSource = "none"
)

// detectCurrency returns the currency code and the byte span of its token.
func detectCurrency(text string) (code string, start, end int) {
	if loc := currencyCodeRe.FindStringSubmatchIndex(text); loc != nil {
		code = text[loc[2]:loc[3]]
		if code == "RMB" {
			code = "CNY"
		}
		return code, loc[0], loc[1]
	}
	for _, s := range currencySymbols {
		if i := strings.Index(text, s.symbol); i >= 0 {
			return s.code, i, i + len(s.symbol)
		}
	}
	return "", -1, -1
}

// normalizeAmount turns a locale formatted number into a float, treating the
// last separator as decimal only when it is not followed by exactly three digits.
func normalizeAmount(num string) (float64, bool) {
	num = strings.NewReplacer("'", "", "’", "", " ", "", "\u00a0", "", "\u202f", "").Replace(num)
	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			num = strings.ReplaceAll(num, ",", "")
		} else {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(num, sep) > 1 || len(num)-idx-1 == 3 {
			num = strings.ReplaceAll(num, sep, "")
		} else {
			num = strings.Replace(num, sep, ".", 1)
		}
	}

	val, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(val) || val <= 0 {
		return 0, false
	}
	return val, true
}

// ParsePrice reads a currency plus amount out of free text. Text without both a
// currency marker and digits yields the unknown price.
func ParsePrice(text string) models.Price {
	text = strings.Join(strings.Fields(text), " ")
	code, cStart, cEnd := detectCurrency(text)
	if code == "" {
		return models.UnknownPrice()
	}

	// prefer the number closest to the currency token, on ties the one after it
	locs := priceNumberRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return models.UnknownPrice()
	}
	best := locs[0]
	bestGap := math.MaxInt
	for _, loc := range locs {
		gap := loc[0] - cEnd
		if loc[1] <= cStart {
			gap = cStart - loc[1]
		}
		if gap >= 0 && (gap < bestGap || gap == bestGap && loc[0] >= cEnd) {
			best, bestGap = loc, gap
		}
	}

	amount, ok := normalizeAmount(text[best[0]:best[1]])
	if !ok {
		return models.UnknownPrice()
	}

	formatted := text[best[0]:best[1]]
	if bestGap <= 3 {
		formatted = text[min(cStart, best[0]):max(cEnd, best[1])]
	} else {
		formatted = text[cStart:cEnd] + " " + formatted
	}
	return models.Price{Formatted: strings.TrimSpace(formatted), Currency: code, Amount: &amount}
}

// FormatPrice renders a structured amount and derives the amount back from the
// rendered text, so formatted and amount can never disagree.
func FormatPrice(currency string, amount float64) models.Price {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || amount <= 0 {
		return models.UnknownPrice()
	}
	if _, _, end := detectCurrency(currency); end < 0 {
		return models.UnknownPrice()
	}
	formatted := currency + " " + humanize.CommafWithDigits(amount, 2)
	p := ParsePrice(formatted)
	p.Currency = currency
	return p
}

func parseAmountString(s string) (float64, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
		return v, true
	}
	return normalizeAmount(s)
}

func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		sel := doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"], meta[itemprop="` + name + `"]`).First()
		if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func priceFromMetaTags(doc *goquery.Document) (models.Price, bool) {
	raw := metaContent(doc, "product:price:amount", "og:price:amount", "price")
	currency := metaContent(doc, "product:price:currency", "og:price:currency", "priceCurrency")
	amount, ok := parseAmountString(raw)
	if !ok || currency == "" {
		return models.Price{}, false
	}
	p := FormatPrice(currency, amount)
	return p, p.Known()
}

func priceFromStructuredData(ld []ldProduct) (models.Price, bool) {
	for _, prod := range ld {
		for _, offer := range prod.offers() {
			raw := rawString(offer.Price)
			if raw == "" {
				raw = rawString(offer.LowPrice)
			}
			amount, ok := parseAmountString(raw)
			if !ok || offer.PriceCurrency == "" {
				continue
			}
			if p := FormatPrice(offer.PriceCurrency, amount); p.Known() {
				return p, true
			}
		}
	}
	return models.Price{}, false
}

// priceFromBoxes scans rendered price-like labels: class or id hints first,
// otherwise the largest visible label that parses. Boxes at or below a
// related-products heading are ignored.
func priceFromBoxes(boxes []TextBox, relatedY float64) (models.Price, bool) {
	var eligible []TextBox
	for _, b := range boxes {
		if !b.Visible {
			continue
		}
		if relatedY >= 0 && b.Y >= relatedY {
			continue
		}
		eligible = append(eligible, b)
	}

	for _, b := range eligible {
		if priceLikeRe.MatchString(b.Class) || priceLikeRe.MatchString(b.ID) {
			if p := ParsePrice(b.Text); p.Known() {
				return p, true
			}
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Area() > eligible[j].Area() })
	for _, b := range eligible {
		if p := ParsePrice(b.Text); p.Known() {
			return p, true
		}
	}
	return models.Price{}, false
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
