package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

var errNotAnImage = errors.New("data is not a supported image")

// gltfImageExtractorImpl is the implementation of the gltfImageExtractor interface.
type gltfImageExtractorImpl struct {
	parser  gltfParser
	workers int
	maxSize int
}

// gltfImageExtractor decodes the images a document's textures reference.
type gltfImageExtractor interface {
	// ExtractAllImages decodes every referenced image to RGBA in parallel. Unreferenced images
	// are returned empty.
	//
	// Parameters:
	//   - ctx: cancels outstanding decodes
	//
	// Returns:
	//   - []model.ImportedImage: one entry per document image
	//   - error: the first decode error
	ExtractAllImages(ctx context.Context) ([]model.ImportedImage, error)
}

var _ gltfImageExtractor = &gltfImageExtractorImpl{}

// newGLTFImageExtractor creates an image extractor.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - workers: the decode concurrency, at least one
//   - maxSize: images larger than this on either side are scaled down, zero for no limit
//
// Returns:
//   - gltfImageExtractor: the image extractor
func newGLTFImageExtractor(parser gltfParser, workers, maxSize int) gltfImageExtractor {
	return &gltfImageExtractorImpl{parser: parser, workers: max(workers, 1), maxSize: maxSize}
}

func (e *gltfImageExtractorImpl) ExtractAllImages(ctx context.Context) ([]model.ImportedImage, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}

	referenced := make([]bool, len(doc.Images))
	for _, t := range doc.Textures {
		if t.Source != nil && *t.Source >= 0 && *t.Source < len(referenced) {
			referenced[*t.Source] = true
		}
	}

	images := make([]model.ImportedImage, len(doc.Images))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range doc.Images {
		images[i].Name = doc.Images[i].Name
		if !referenced[i] {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := e.extractImage(i)
			if err != nil {
				return fmt.Errorf("image %d %q: %w", i, doc.Images[i].Name, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// extractImage reads the encoded bytes of an image and decodes them.
func (e *gltfImageExtractorImpl) extractImage(index int) (model.ImportedImage, error) {
	src := &e.parser.Document().Images[index]
	result := model.ImportedImage{Name: src.Name, MimeType: src.MimeType}

	var data []byte
	var err error
	switch {
	case src.BufferView != nil:
		data, err = e.parser.ReadBufferView(*src.BufferView)
	case src.URI != "":
		var mimeType string
		data, mimeType, err = e.parser.ReadURI(src.URI)
		if result.MimeType == "" {
			result.MimeType = mimeType
		}
	default:
		err = errors.New("image has neither bufferView nor uri")
	}
	if err != nil {
		return result, err
	}

	if result.MimeType == "" {
		kind, err := filetype.Match(data)
		if err != nil || kind == filetype.Unknown {
			return result, errNotAnImage
		}
		result.MimeType = kind.MIME.Value
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return result, fmt.Errorf("%s: %w", result.MimeType, err)
	}
	nrgba := e.toNRGBA(decoded)

	b := nrgba.Bounds()
	result.Width, result.Height = b.Dx(), b.Dy()
	result.Pixels = nrgba.Pix
	if result.Name == "" {
		result.Name = fmt.Sprintf("image_%d.%s", index, format)
	}
	return result, nil
}

// toNRGBA converts to tightly packed straight-alpha RGBA, scaling down to maxSize when set.
func (e *gltfImageExtractorImpl) toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if e.maxSize > 0 && (w > e.maxSize || h > e.maxSize) {
		if w >= h {
			w, h = e.maxSize, max(h*e.maxSize/w, 1)
		} else {
			w, h = max(w*e.maxSize/h, 1), e.maxSize
		}
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return dst
	}

	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*w {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
