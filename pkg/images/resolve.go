package images

import (
	"context"
	"errors"

	"watch-harvest/pkg/models"

	log "github.com/sirupsen/logrus"
)

// CanonicalFormat is the single output format for uploaded images.
const CanonicalFormat = "webp"

// ResolvedImage is where a record's image ends up.
type ResolvedImage struct {
	URL      string `json:"url"`
	Source   string `json:"source"`
	Uploaded bool   `json:"uploaded"`
}

// Resolver turns candidate image URLs into stored images.
type Resolver struct {
	Fetcher  Fetcher
	Uploader Uploader
	Format   string
}

func NewResolver(f Fetcher, u Uploader) *Resolver {
	return &Resolver{Fetcher: f, Uploader: u, Format: CanonicalFormat}
}

// Resolve passes candidateURL through unchanged unless upload is set. With
// upload it downloads the image and stores it under targetKey, overwriting
// any previous object.
func (r *Resolver) Resolve(ctx context.Context, candidateURL, targetKey string, upload bool) (ResolvedImage, error) {
	if !upload || candidateURL == "" {
		return ResolvedImage{URL: candidateURL, Source: candidateURL}, nil
	}
	if r.Fetcher == nil || r.Uploader == nil {
		return ResolvedImage{}, &models.UploadError{Key: targetKey, Err: errors.New("no object store configured")}
	}

	data, err := r.Fetcher.Fetch(ctx, candidateURL)
	if err != nil {
		var dl *models.DownloadError
		if errors.As(err, &dl) {
			return ResolvedImage{}, err
		}
		return ResolvedImage{}, &models.DownloadError{URL: candidateURL, Err: err}
	}

	format := r.Format
	if format == "" {
		format = CanonicalFormat
	}
	stored, err := r.Uploader.UploadImage(ctx, data, targetKey, UploadOptions{Format: format, Overwrite: true})
	if err != nil {
		return ResolvedImage{}, &models.UploadError{Key: targetKey, Err: err}
	}
	return ResolvedImage{URL: stored, Source: candidateURL, Uploaded: true}, nil
}

// ResolveFirst passes the first candidate through when upload is off.
// Otherwise it tries candidates best first and returns the first success, or
// the last error when all fail.
func (r *Resolver) ResolveFirst(ctx context.Context, candidates []string, targetKey string, upload bool) (ResolvedImage, error) {
	if !upload {
		for _, c := range candidates {
			if c != "" {
				return r.Resolve(ctx, c, targetKey, false)
			}
		}
		return ResolvedImage{}, nil
	}
	ranked := Rank(candidates)
	var lastErr error
	for _, c := range ranked {
		img, err := r.Resolve(ctx, c, targetKey, true)
		if err == nil {
			return img, nil
		}
		log.WithFields(log.Fields{"candidate": c, "key": targetKey}).Warnf("image candidate failed: %v", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return ResolvedImage{}, lastErr
}
