package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// storedCookie is the on-disk form of a browser cookie.
type storedCookie struct {
	Name     string                 `json:"name"`
	Value    string                 `json:"value"`
	Domain   string                 `json:"domain"`
	Path     string                 `json:"path"`
	Expires  float64                `json:"expires"`
	Secure   bool                   `json:"secure"`
	HTTPOnly bool                   `json:"httpOnly"`
	SameSite network.CookieSameSite `json:"sameSite,omitempty"`
}

func writeCookieFile(path string, cookies []storedCookie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage state dir: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	// a private temp file per writer, since concurrent jobs share the path
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create storage state temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write storage state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readCookieFile drops cookies that expired since they were saved.
func readCookieFile(path string, now time.Time) ([]storedCookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var all []storedCookie
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse storage state %s: %w", path, err)
	}
	live := all[:0]
	for _, c := range all {
		if c.Expires > 0 && int64(c.Expires) < now.Unix() {
			continue
		}
		live = append(live, c)
	}
	return live, nil
}

func saveCookies(ctx context.Context, path string) error {
	var cookies []storedCookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		got, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range got {
			cookies = append(cookies, storedCookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
				SameSite: c.SameSite,
			})
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}
	return writeCookieFile(path, cookies)
}

func restoreCookies(ctx context.Context, path string) (int, error) {
	cookies, err := readCookieFile(path, time.Now())
	if err != nil {
		return 0, err
	}
	restored := 0
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			set := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.SameSite != "" {
				set = set.WithSameSite(c.SameSite)
			}
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				set = set.WithExpires(&exp)
			}
			if err := set.Do(ctx); err != nil {
				continue
			}
			restored++
		}
		return nil
	}))
	return restored, err
}
