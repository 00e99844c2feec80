package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultPadding   = 50
	DefaultQuality   = 85
	DefaultMaxWidth  = 1200
	DefaultMaxHeight = 1200
)

// DefaultVariants — размеры производных изображений по умолчанию.
func DefaultVariants() []usecase.VariantSpec {
	return []usecase.VariantSpec{
		{Suffix: "_400x400", Width: 400, Height: 400},
		{Suffix: "_150x150", Width: 150, Height: 150},
	}
}

// Engine превращает исходные байты изображения в основное изображение с полями и варианты.
type Engine struct {
	defaults usecase.TransformOptions
	logger   logger.Logger
}

func NewEngine(defaults usecase.TransformOptions, logger logger.Logger) *Engine {
	return &Engine{
		defaults: withDefaults(defaults, usecase.TransformOptions{
			Padding:   DefaultPadding,
			Quality:   DefaultQuality,
			MaxWidth:  DefaultMaxWidth,
			MaxHeight: DefaultMaxHeight,
			Variants:  DefaultVariants(),
		}),
		logger: logger,
	}
}

// Options возвращает настройки движка по умолчанию.
func (en *Engine) Options() usecase.TransformOptions {
	return en.defaults
}

// Transform декодирует source, вписывает его в ограничивающий прямоугольник, добавляет прозрачные поля
// и кодирует в WebP. Ошибка одного варианта логируется и не влияет на остальные.
func (en *Engine) Transform(source []byte, name string, opts usecase.TransformOptions) (*usecase.TransformResult, error) {
	opts = withDefaults(opts, en.defaults)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(source))
	if err != nil {
		return nil, e.NewProcessingError(name, "decode", err)
	}

	src, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, e.NewProcessingError(name, "decode", err)
	}

	meta := usecase.ImageMetadata{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Channels: channelCount(cfg.ColorModel),
		Format:   format,
	}
	meta.HasAlpha = meta.Channels == 4

	// imaging всегда работает в NRGBA, так что альфа-канал появляется здесь
	img := imaging.Clone(src)

	b := img.Bounds()
	if b.Dx() > opts.MaxWidth || b.Dy() > opts.MaxHeight {
		img = imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
	}

	padded := pad(img, opts.Padding)

	mainBytes, err := encodeWebP(padded, opts.Quality)
	if err != nil {
		return nil, e.NewProcessingError(name, "encode", err)
	}

	res := &usecase.TransformResult{
		Main:       mainBytes,
		MainWidth:  padded.Bounds().Dx(),
		MainHeight: padded.Bounds().Dy(),
		Variants:   make(map[string][]byte, len(opts.Variants)),
		Original:   meta,
	}

	for _, v := range opts.Variants {
		data, err := en.variant(padded, v, opts.Quality)
		if err != nil {
			en.logger.Warnf("variant %s of %s skipped: %v", v.Suffix, name, err)
			continue
		}
		res.Variants[v.Suffix] = data
	}

	return res, nil
}

// variant вписывает изображение в {w,h} без обрезки и дополняет остаток прозрачностью.
func (en *Engine) variant(src *image.NRGBA, spec usecase.VariantSpec, quality int) ([]byte, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid variant size %dx%d", spec.Width, spec.Height)
	}

	w, h := containSize(src.Bounds().Dx(), src.Bounds().Dy(), spec.Width, spec.Height)
	resized := imaging.Resize(src, w, h, imaging.Lanczos)

	canvas := imaging.New(spec.Width, spec.Height, color.NRGBA{})
	canvas = imaging.PasteCenter(canvas, resized)

	return encodeWebP(canvas, quality)
}

// pad расширяет холст на padding пикселей с каждой стороны, новая область прозрачна.
func pad(img *image.NRGBA, padding int) *image.NRGBA {
	if padding <= 0 {
		return img
	}

	b := img.Bounds()
	canvas := imaging.New(b.Dx()+2*padding, b.Dy()+2*padding, color.NRGBA{})
	return imaging.Paste(canvas, img, image.Pt(padding, padding))
}

// containSize возвращает размеры, при которых w×h вписывается в maxW×maxH с сохранением пропорций.
func containSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}

	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))

	return clamp(nw, 1, maxW), clamp(nh, 1, maxH)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("webp encode: %w", err)
	}

	return buf.Bytes(), nil
}

func channelCount(m color.Model) int {
	// палитра: альфа есть, если хотя бы один цвет не непрозрачен
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	}

	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return 4
	default:
		return 3
	}
}

func withDefaults(opts, defaults usecase.TransformOptions) usecase.TransformOptions {
	// отрицательный отступ означает «без полей»
	if opts.Padding == 0 {
		opts.Padding = defaults.Padding
	} else if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = defaults.Quality
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = defaults.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = defaults.MaxHeight
	}
	if opts.Variants == nil {
		opts.Variants = defaults.Variants
	}
	return opts
}
