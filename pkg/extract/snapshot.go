package extract

// Box is a rendered element rectangle in document coordinates (scroll offset
// already applied).
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Box) Area() float64    { return b.Width * b.Height }
func (b Box) CenterX() float64 { return b.X + b.Width/2 }
func (b Box) CenterY() float64 { return b.Y + b.Height/2 }

// ImageNode is a visible <img> or an element with a CSS background image.
type ImageNode struct {
	Box
	Src           string  `json:"src"`
	Srcset        string  `json:"srcset,omitempty"`
	Alt           string  `json:"alt,omitempty"`
	NaturalWidth  float64 `json:"naturalWidth,omitempty"`
	NaturalHeight float64 `json:"naturalHeight,omitempty"`
	Visible       bool    `json:"visible"`
}

// TextBox is a short visible text element: a heading or a price-like label.
type TextBox struct {
	Box
	Tag     string `json:"tag"`
	Text    string `json:"text"`
	Class   string `json:"class,omitempty"`
	ID      string `json:"id,omitempty"`
	Visible bool   `json:"visible"`
}

// Snapshot is everything the extractor needs from a rendered product page.
// It is produced by the renderer and is plain data, so extraction runs
// without a browser.
type Snapshot struct {
	URL            string      `json:"url"`
	Title          string      `json:"title"`
	HTML           string      `json:"html"`
	BodyText       string      `json:"bodyText"`
	PageHeight     float64     `json:"pageHeight"`
	ViewportWidth  float64     `json:"viewportWidth"`
	ViewportHeight float64     `json:"viewportHeight"`
	Images         []ImageNode `json:"images"`
	Backgrounds    []ImageNode `json:"backgrounds"`
	Headings       []TextBox   `json:"headings"`
	PriceBoxes     []TextBox   `json:"priceBoxes"`
}
