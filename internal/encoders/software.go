package encoders

import (
	"fmt"
	"image"
	"image/jpeg"

	"github.com/camkit/camsink/internal/frame"
)

// compressSoftware encodes src into dst as JPEG on the CPU. Frames that are
// already JPEG pass through untouched. The destination buffer is reused
// across frames: it grows on demand and is never shrunk.
func compressSoftware(src, dst *frame.Frame, quality int) error {
	dst.CopyMetaFrom(src)
	dst.EncodeBeginTS = frame.Now()

	switch src.Format {
	case frame.FormatJPEG, frame.FormatMJPEG:
		dst.SetPayload(src.Payload())
	default:
		img, err := toImage(src)
		if err != nil {
			return err
		}
		dst.Used = 0
		dst.Data = dst.Data[:0]
		if err := jpeg.Encode(frameWriter{dst}, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encoders: jpeg encode: %w", err)
		}
	}

	dst.Format = frame.FormatJPEG
	dst.Stride = 0
	dst.EncodeEndTS = frame.Now()
	return nil
}

// frameWriter appends encoded bytes into the frame's reusable buffer.
type frameWriter struct {
	f *frame.Frame
}

func (w frameWriter) Write(p []byte) (int, error) {
	n := w.f.Used
	w.f.Ensure(n + len(p))
	copy(w.f.Data[n:], p)
	return len(p), nil
}

// toImage wraps the raw frame bytes in an image.Image for the stdlib JPEG
// encoder. Packed YUV 4:2:2 is unpacked into planar YCbCr; RGB byte orders
// are expanded to RGBA.
func toImage(f *frame.Frame) (image.Image, error) {
	w, h := int(f.Width), int(f.Height)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("encoders: bad geometry %dx%d", w, h)
	}

	switch f.Format {
	case frame.FormatYUYV:
		return unpackYUV422(f, w, h, 0, 1, 3)
	case frame.FormatUYVY:
		return unpackYUV422(f, w, h, 1, 0, 2)
	case frame.FormatRGB24:
		return unpackRGB(f, w, h, 0, 1, 2)
	case frame.FormatBGR24:
		return unpackRGB(f, w, h, 2, 1, 0)
	case frame.FormatGrey:
		return unpackGrey(f, w, h)
	default:
		return nil, fmt.Errorf("encoders: unsupported pixel format %s", f.Format)
	}
}

// unpackYUV422 converts packed 4:2:2 (two pixels per four bytes) to planar
// YCbCr. yOff is the offset of the first luma byte within a four-byte
// group, cbOff/crOff the chroma offsets. Geometry comes from an untrusted
// producer, so it is validated rather than assumed.
func unpackYUV422(f *frame.Frame, w, h, yOff, cbOff, crOff int) (image.Image, error) {
	if w%2 != 0 {
		return nil, fmt.Errorf("encoders: packed 4:2:2 needs an even width, got %d", w)
	}
	stride := int(f.Stride)
	if stride == 0 {
		stride = w * 2
	}
	if stride < w*2 {
		return nil, fmt.Errorf("encoders: stride %d too small for width %d", stride, w)
	}
	if f.Used < stride*h {
		return nil, fmt.Errorf("encoders: short frame: %d bytes for %dx%d stride %d", f.Used, w, h, stride)
	}

	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := 0; y < h; y++ {
		row := f.Data[y*stride:]
		for x := 0; x < w; x += 2 {
			g := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = g[yOff]
			img.Y[y*img.YStride+x+1] = g[yOff+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = g[cbOff]
			img.Cr[ci] = g[crOff]
		}
	}
	return img, nil
}

func unpackRGB(f *frame.Frame, w, h, rOff, gOff, bOff int) (image.Image, error) {
	stride := int(f.Stride)
	if stride == 0 {
		stride = w * 3
	}
	if stride < w*3 {
		return nil, fmt.Errorf("encoders: stride %d too small for width %d", stride, w)
	}
	if f.Used < stride*h {
		return nil, fmt.Errorf("encoders: short frame: %d bytes for %dx%d stride %d", f.Used, w, h, stride)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := f.Data[y*stride:]
		for x := 0; x < w; x++ {
			p := img.Pix[y*img.Stride+x*4:]
			p[0] = row[x*3+rOff]
			p[1] = row[x*3+gOff]
			p[2] = row[x*3+bOff]
			p[3] = 0xff
		}
	}
	return img, nil
}

func unpackGrey(f *frame.Frame, w, h int) (image.Image, error) {
	stride := int(f.Stride)
	if stride == 0 {
		stride = w
	}
	if stride < w {
		return nil, fmt.Errorf("encoders: stride %d too small for width %d", stride, w)
	}
	if f.Used < stride*h {
		return nil, fmt.Errorf("encoders: short frame: %d bytes for %dx%d stride %d", f.Used, w, h, stride)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+w], f.Data[y*stride:])
	}
	return img, nil
}
