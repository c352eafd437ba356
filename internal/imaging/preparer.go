// Package imaging turns source photos into vision-API-compliant
// derivatives: bounded pixel dimensions, bounded encoded size.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/photosmith/photosmith/constants"
	"github.com/photosmith/photosmith/internal/common"
)

// Prepared is an encoded derivative ready to send to the provider.
type Prepared struct {
	Bytes   []byte
	Width   int
	Height  int
	Quality int
}

// Preparer produces provider-compliant JPEG derivatives.
type Preparer struct {
	fetcher SourceFetcher
	logger  *slog.Logger

	maxEdge      int
	maxBytes     int
	startQuality int
	qualityStep  int
	qualityFloor int
}

func NewPreparer(fetcher SourceFetcher, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		fetcher:      fetcher,
		logger:       logger,
		maxEdge:      constants.MaxImageEdgePx,
		maxBytes:     constants.MaxImageBytes,
		startQuality: constants.JPEGStartQuality,
		qualityStep:  constants.JPEGQualityStep,
		qualityFloor: constants.JPEGQualityFloor,
	}
}

// PrepareURL fetches the source image and prepares it.
func (p *Preparer) PrepareURL(ctx context.Context, url string) (Prepared, error) {
	src, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return Prepared{}, err
	}
	return p.Prepare(src)
}

// Prepare decodes src, resizes it so the longest edge fits the bound
// (aspect ratio preserved), and re-encodes as JPEG, stepping the
// quality down until the byte budget is met. A pure transform: no side
// effects beyond the returned buffer.
func (p *Preparer) Prepare(src []byte) (Prepared, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return Prepared{}, common.NewProcessingError(common.KindImageDecode, "decode source image", err)
	}

	img = p.bound(img)
	b := img.Bounds()

	for q := p.startQuality; q >= p.qualityFloor; q -= p.qualityStep {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return Prepared{}, common.NewProcessingError(common.KindImageDecode, "encode jpeg", err)
		}
		if buf.Len() <= p.maxBytes {
			p.logger.Debug("image prepared",
				"width", b.Dx(), "height", b.Dy(), "quality", q, "bytes", buf.Len())
			return Prepared{Bytes: buf.Bytes(), Width: b.Dx(), Height: b.Dy(), Quality: q}, nil
		}
	}
	return Prepared{}, common.NewProcessingError(common.KindImageTooLarge,
		fmt.Sprintf("cannot encode under %d bytes at quality floor %d", p.maxBytes, p.qualityFloor), nil)
}

// bound resizes once so the longest edge is at most maxEdge: landscape
// caps the width, portrait the height, square either.
func (p *Preparer) bound(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= p.maxEdge && h <= p.maxEdge {
		return img
	}
	if w >= h {
		return imaging.Resize(img, p.maxEdge, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, p.maxEdge, imaging.Lanczos)
}
