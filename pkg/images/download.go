package images

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"watch-harvest/pkg/models"
	"watch-harvest/pkg/render"

	"github.com/gocolly/colly/v2"
)

// Fetcher downloads one image.
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// Downloader fetches images the way a desktop browser would, with the
// image's own origin as Referer.
type Downloader struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

func NewDownloader() *Downloader {
	return &Downloader{UserAgent: render.DesktopUserAgent, Timeout: 60 * time.Second, MaxBodySize: 25 << 20}
}

// Origin returns scheme://host of raw, or "".
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

func (d *Downloader) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(d.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(d.MaxBodySize),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(d.Timeout)

	var (
		body   []byte
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		if ref := Origin(imageURL); ref != "" {
			r.Headers.Set("Referer", ref)
		}
		r.Headers.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})

	if err := c.Visit(imageURL); err != nil {
		return nil, &models.DownloadError{URL: imageURL, StatusCode: status, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &models.DownloadError{URL: imageURL, StatusCode: status}
	}
	if len(body) == 0 {
		return nil, &models.DownloadError{URL: imageURL, StatusCode: status, Err: errEmptyBody}
	}
	if ct := http.DetectContentType(body); strings.HasPrefix(ct, "text/html") {
		return nil, &models.DownloadError{URL: imageURL, StatusCode: status, Err: &contentTypeError{ct}}
	}
	return body, nil
}
