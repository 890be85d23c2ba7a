package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type ldOffer struct {
	Price         json.RawMessage `json:"price"`
	LowPrice      json.RawMessage `json:"lowPrice"`
	PriceCurrency string          `json:"priceCurrency"`
	URL           string          `json:"url"`
}

// ldProduct is the subset of a schema.org Product we read. Offers, brand and
// image come in several shapes, so they stay raw until needed.
type ldProduct struct {
	Type        json.RawMessage `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Sku         string          `json:"sku"`
	Mpn         string          `json:"mpn"`
	Category    string          `json:"category"`
	Brand       json.RawMessage `json:"brand"`
	Image       json.RawMessage `json:"image"`
	Offers      json.RawMessage `json:"offers"`
}

func (p ldProduct) isProduct() bool {
	var single string
	if err := json.Unmarshal(p.Type, &single); err == nil {
		return strings.EqualFold(single, "Product") || strings.EqualFold(single, "ProductModel")
	}
	var many []string
	if err := json.Unmarshal(p.Type, &many); err == nil {
		for _, t := range many {
			if strings.EqualFold(t, "Product") {
				return true
			}
		}
	}
	return false
}

func (p ldProduct) offers() []ldOffer {
	if len(p.Offers) == 0 {
		return nil
	}
	var one ldOffer
	if err := json.Unmarshal(p.Offers, &one); err == nil {
		return []ldOffer{one}
	}
	var many []ldOffer
	if err := json.Unmarshal(p.Offers, &many); err == nil {
		return many
	}
	return nil
}

func (p ldProduct) brandName() string {
	if len(p.Brand) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(p.Brand, &name); err == nil {
		return name
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(p.Brand, &obj); err == nil {
		return obj.Name
	}
	return ""
}

func (p ldProduct) images() []string {
	if len(p.Image) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(p.Image, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(p.Image, &many); err == nil {
		return many
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(p.Image, &obj); err == nil && obj.URL != "" {
		return []string{obj.URL}
	}
	return nil
}

// structuredProducts collects Product nodes from every JSON-LD script,
// including arrays and @graph containers. Broken scripts are skipped.
func structuredProducts(doc *goquery.Document) []ldProduct {
	var out []ldProduct
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var nodes []json.RawMessage
		if strings.HasPrefix(text, "[") {
			if err := json.Unmarshal([]byte(text), &nodes); err != nil {
				return
			}
		} else {
			var graph struct {
				Graph []json.RawMessage `json:"@graph"`
			}
			if err := json.Unmarshal([]byte(text), &graph); err == nil && len(graph.Graph) > 0 {
				nodes = graph.Graph
			} else {
				nodes = []json.RawMessage{json.RawMessage(text)}
			}
		}
		for _, n := range nodes {
			var p ldProduct
			if err := json.Unmarshal(n, &p); err == nil && p.isProduct() {
				out = append(out, p)
			}
		}
	})
	return out
}
