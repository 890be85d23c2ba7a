package discover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"

	"watch-harvest/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productRe = regexp.MustCompile(`^https?://[^/]+/en/watch/[a-z0-9-]+/[0-9a-z.]+$`)

func TestCanonicalize(t *testing.T) {
	base, err := url.Parse("https://www.example.com/en/watches/royal-oak")
	require.NoError(t, err)

	tests := []struct {
		href string
		want string
	}{
		{"/en/watch/royal-oak/15510st", "https://www.example.com/en/watch/royal-oak/15510st"},
		{"15510st#gallery", "https://www.example.com/en/watches/15510st"},
		{"https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"#top", ""},
		{"mailto:sales@example.com", ""},
		{"javascript:void(0)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonicalize(base, tt.href), tt.href)
	}
}

// fakeListing reveals one more batch of anchors per scroll step.
type fakeListing struct {
	batches [][]string
	shown   int
	closed  bool
}

func (f *fakeListing) Hrefs(context.Context) ([]string, error) {
	var out []string
	for _, b := range f.batches[:f.shown] {
		out = append(out, b...)
	}
	return out, nil
}

func (f *fakeListing) ScrollStep(context.Context) error {
	if f.shown < len(f.batches) {
		f.shown++
	}
	return nil
}

func (f *fakeListing) Location(context.Context) (string, error) {
	return "https://www.example.com/en/watches/royal-oak", nil
}

func (f *fakeListing) Close() { f.closed = true }

func TestDiscoverer_AccumulatesAcrossScrolls(t *testing.T) {
	page := &fakeListing{shown: 1, batches: [][]string{
		{"/en/watch/royal-oak/b2", "/en/watch/royal-oak/a1", "/en/watches/code-11-59"},
		{"/en/watch/royal-oak/a1#specs", "/en/watch/royal-oak/c3"},
		{"https://www.example.com/en/watch/royal-oak/b2", "/legal/privacy"},
	}}
	d := NewDiscoverer(func(context.Context, string) (ListingPage, error) { return page, nil }, 20, 2)
	d.Tick = 0

	links, err := d.Discover(context.Background(), "https://www.example.com/en/watches/royal-oak", productRe)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.example.com/en/watch/royal-oak/b2",
		"https://www.example.com/en/watch/royal-oak/a1",
		"https://www.example.com/en/watch/royal-oak/c3",
	}, links)
	assert.True(t, page.closed)
}

func TestDiscoverer_EmptyListingIsNotAnError(t *testing.T) {
	page := &fakeListing{shown: 1, batches: [][]string{{"/about", "/contact"}}}
	d := NewDiscoverer(func(context.Context, string) (ListingPage, error) { return page, nil }, 10, 3)
	d.Tick = 0

	links, err := d.Discover(context.Background(), "https://www.example.com/en/watches", productRe)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDiscoverer_NavigationFailure(t *testing.T) {
	navErr := &models.NavigationError{URL: "https://www.example.com/en/watches", Err: errors.New("timeout")}
	d := NewDiscoverer(func(context.Context, string) (ListingPage, error) { return nil, navErr }, 10, 3)

	_, err := d.Discover(context.Background(), "https://www.example.com/en/watches", productRe)
	var target *models.NavigationError
	assert.True(t, errors.As(err, &target))
}

func TestStaticDiscoverer_FollowsPagination(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Logf("Received request for: %s", r.URL.RequestURI())
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprintln(w, `<html><body>
				<a href="/en/watch/royal-oak/26240st.oo.1320st.02">Chronograph</a>
				<a href="/en/watch/code-11-59/15210cr.oo.a002cr.01">Code 11.59</a>
			</body></html>`)
			return
		}
		fmt.Fprintln(w, `<html><body>
			<a href="/en/watch/royal-oak/15510st.oo.1320st.06">Royal Oak</a>
			<a href="/en/watch/royal-oak/26240st.oo.1320st.02">Chronograph</a>
			<a href="/en/stores">Stores</a>
			<a rel="next" href="/en/watches?page=2">Next</a>
		</body></html>`)
	}))
	defer ts.Close()

	links, err := NewStaticDiscoverer(5).Discover(context.Background(), ts.URL+"/en/watches", productRe)
	require.NoError(t, err)
	assert.Equal(t, []string{
		ts.URL + "/en/watch/royal-oak/15510st.oo.1320st.06",
		ts.URL + "/en/watch/royal-oak/26240st.oo.1320st.02",
		ts.URL + "/en/watch/code-11-59/15210cr.oo.a002cr.01",
	}, links)
}

func TestStaticDiscoverer_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := NewStaticDiscoverer(1).Discover(context.Background(), ts.URL+"/en/watches", productRe)
	assert.Error(t, err)
}
