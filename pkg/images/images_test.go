package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"watch-harvest/pkg/models"
	"watch-harvest/pkg/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type recordingUploader struct {
	key  string
	opts UploadOptions
	data []byte
	err  error
}

func (u *recordingUploader) UploadImage(_ context.Context, data []byte, key string, opts UploadOptions) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.key, u.opts, u.data = key, opts, data
	return "https://res.cloudinary.com/demo/image/upload/" + key + "." + opts.Format, nil
}

func TestRank(t *testing.T) {
	got := Rank([]string{
		"https://cdn.example.com/images/hero_thumb.jpg",
		"https://cdn.example.com/image/upload/w_1600/hero.jpg",
		"",
		"https://cdn.example.com/images/hero.gif",
		"https://cdn.example.com/images/hero.jpg?width=2400",
		"https://cdn.example.com/image/upload/w_1600/hero.jpg",
		"https://cdn.example.com/images/hero.png",
	})
	assert.Equal(t, []string{
		"https://cdn.example.com/images/hero.jpg?width=2400",
		"https://cdn.example.com/image/upload/w_1600/hero.jpg",
		"https://cdn.example.com/images/hero_thumb.jpg",
		"https://cdn.example.com/images/hero.png",
		"https://cdn.example.com/images/hero.gif",
	}, got)
}

func TestDownloader_SendsBrowserHeaders(t *testing.T) {
	var gotUA, gotReferer string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotReferer = r.Referer()
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer ts.Close()

	data, err := NewDownloader().Fetch(context.Background(), ts.URL+"/images/hero.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, render.DesktopUserAgent, gotUA)
	assert.Equal(t, ts.URL+"/", gotReferer)
}

func TestDownloader_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := NewDownloader().Fetch(context.Background(), ts.URL+"/images/missing.jpg")
	var dl *models.DownloadError
	require.True(t, errors.As(err, &dl))
	assert.Equal(t, http.StatusNotFound, dl.StatusCode)
}

func TestResolve_PassThrough(t *testing.T) {
	up := &recordingUploader{}
	r := NewResolver(nil, up)

	img, err := r.Resolve(context.Background(), "https://cdn.example.com/images/hero.jpg", "ap/15510st", false)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/images/hero.jpg", img.URL)
	assert.False(t, img.Uploaded)
	assert.Empty(t, up.key)
}

func TestResolve_UploadsUnderKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	}))
	defer ts.Close()

	up := &recordingUploader{}
	r := NewResolver(NewDownloader(), up)

	key := ObjectKey("audemars-piguet", "15510ST.OO.1320ST.06", "")
	img, err := r.Resolve(context.Background(), ts.URL+"/hero.png", key, true)
	require.NoError(t, err)
	assert.Equal(t, "audemars-piguet/15510st.oo.1320st.06", up.key)
	assert.Equal(t, UploadOptions{Format: "webp", Overwrite: true}, up.opts)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/audemars-piguet/15510st.oo.1320st.06.webp", img.URL)
	assert.True(t, img.Uploaded)

	again, err := r.Resolve(context.Background(), ts.URL+"/hero.png", key, true)
	require.NoError(t, err)
	assert.Equal(t, img.URL, again.URL)
}

func TestResolve_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/forbidden.jpg" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(pngHeader)
	}))
	defer ts.Close()

	r := NewResolver(NewDownloader(), &recordingUploader{})
	_, err := r.Resolve(context.Background(), ts.URL+"/forbidden.jpg", "k", true)
	var dl *models.DownloadError
	assert.True(t, errors.As(err, &dl))

	r = NewResolver(NewDownloader(), &recordingUploader{err: errors.New("quota exceeded")})
	_, err = r.Resolve(context.Background(), ts.URL+"/ok.jpg", "k", true)
	var up *models.UploadError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, "k", up.Key)
}

func TestResolveFirst_FallsBackToNextCandidate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("width") == "2400" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(pngHeader)
	}))
	defer ts.Close()

	up := &recordingUploader{}
	r := NewResolver(NewDownloader(), up)
	img, err := r.ResolveFirst(context.Background(), []string{ts.URL + "/hero.jpg", ts.URL + "/hero.jpg?width=2400"}, "k", true)
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/hero.jpg", img.Source)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "patek-philippe/5711-1a-010", ObjectKey("patek-philippe/", "5711/1A-010", ""))
	assert.Equal(t, "15510st-movement", ObjectKey("", "15510ST", "movement"))
}
