package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// OCREngine resolves the configured Tesseract executable. A bare name is
// looked up on PATH; anything else must exist as a file.
func (p *Pipeline) OCREngine() (string, error) {
	path := p.cfg.TesseractPath
	if filepath.Base(path) == path {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", engineErr(fmt.Errorf("tesseract not found at %q: %w", path, err))
		}
		return resolved, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", engineErr(fmt.Errorf("tesseract not found at %q: %w", path, err))
	}
	if info.IsDir() {
		return "", engineErr(fmt.Errorf("tesseract not found at %q: is a directory", path))
	}
	return path, nil
}

// extractImage runs Tesseract on the image and returns the trimmed text.
// Images that are not opaque RGB are flattened onto white first.
func (p *Pipeline) extractImage(ctx context.Context, path string) (string, error) {
	bin, err := p.OCREngine()
	if err != nil {
		return "", err
	}

	img, err := loadImage(path)
	if err != nil {
		return "", err
	}

	input := path
	if !opaqueRGB(img) {
		flat, err := p.writeFlattened(img)
		if err != nil {
			return "", err
		}
		defer os.Remove(flat)
		input = flat
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, input, "stdout", "-l", p.cfg.OCRLanguages)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		wrapped := fmt.Errorf("tesseract: %w: %s (verify the Tesseract installation and the configured path %q)",
			err, strings.TrimSpace(stderr.String()), p.cfg.TesseractPath)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", wrapped
		}
		return "", engineErr(wrapped)
	}
	return strings.TrimSpace(string(out)), nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr(fmt.Errorf("open image: %w", err))
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// opaqueRGB reports whether img already is a three-channel colour image.
// JPEG colour images decode to YCbCr; PNGs without transparency to RGBA.
func opaqueRGB(img image.Image) bool {
	switch m := img.(type) {
	case *image.YCbCr:
		return true
	case *image.RGBA:
		return m.Opaque()
	case *image.NRGBA:
		return m.Opaque()
	case *image.RGBA64:
		return m.Opaque()
	case *image.NRGBA64:
		return m.Opaque()
	default:
		return false
	}
}

// writeFlattened composites img over white into a temporary RGB PNG and
// returns its path. The caller removes the file.
func (p *Pipeline) writeFlattened(img image.Image) (string, error) {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)

	f, err := os.CreateTemp(p.cfg.TempDir, "ocr-*.png")
	if err != nil {
		return "", ioErr(fmt.Errorf("create ocr temp file: %w", err))
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", ioErr(fmt.Errorf("write ocr temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", ioErr(fmt.Errorf("close ocr temp file: %w", err))
	}
	return f.Name(), nil
}
