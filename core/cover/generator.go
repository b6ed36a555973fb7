package cover

import (
	"bytes"
	"image/color"
	"math"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"

	"Bt1Deck/core/utils"
	"Bt1Deck/logger"
	"Bt1Deck/model"
)

const (
	DefaultSize = 200
	// 48px initials on a 200px tile
	fontRatio = 0.24
)

var (
	boldOnce sync.Once
	boldFont *truetype.Font
	boldErr  error
)

func loadBold() (*truetype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = truetype.Parse(gobold.TTF)
	})
	return boldFont, boldErr
}

// Generator renders placeholder covers: a colored tile with the initials of
// the track name.
type Generator struct {
	Size     int
	Gradient bool // diagonal gradient instead of a solid fill
}

func NewGenerator(size int, gradient bool) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{Size: size, Gradient: gradient}
}

// Generate is deterministic: the same text always yields the same PNG bytes.
func (g *Generator) Generate(text string) *model.Cover {
	size := g.Size
	if size <= 0 {
		size = DefaultSize
	}
	hue := Hue(text)
	initials := Initials(text)

	dc := gg.NewContext(size, size)
	if g.Gradient {
		grad := gg.NewLinearGradient(0, 0, float64(size), float64(size))
		grad.AddColorStop(0, HSL(hue, 0.6, 0.4))
		grad.AddColorStop(1, HSL(hue+30, 0.6, 0.3))
		dc.SetFillStyle(grad)
	} else {
		dc.SetColor(HSL(hue, 0.6, 0.4))
	}
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	if initials != "" {
		if f, err := loadBold(); err == nil {
			dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: float64(size) * fontRatio}))
			dc.SetColor(color.White)
			dc.DrawStringAnchored(initials, float64(size)/2, float64(size)/2, 0.5, 0.5)
		} else {
			logger.Warn("加载封面字体失败", logger.ErrorField(err))
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		logger.Error("编码占位封面失败", logger.String("text", text), logger.ErrorField(err))
		return &model.Cover{MIMEType: "image/png", Generated: true, Hue: hue, Initials: initials}
	}
	return &model.Cover{
		Data:      buf.Bytes(),
		MIMEType:  "image/png",
		Generated: true,
		Hue:       hue,
		Initials:  initials,
	}
}

// Hue maps text to a hue in [0, 360).
func Hue(text string) int {
	return utils.HashIndex(text, 360)
}

// Initials returns the uppercased first letters of the first two
// whitespace-separated tokens. Leading whitespace yields an empty first
// token, so " abc def" gives "A".
func Initials(text string) string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if r, _ := utf8.DecodeRuneInString(text); text != "" && unicode.IsSpace(r) {
		words = append([]string{""}, words...)
	}
	var b strings.Builder
	for i, w := range words {
		if i == 2 {
			break
		}
		if r, size := utf8.DecodeRuneInString(w); size > 0 {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// HSL converts hue (degrees), saturation and lightness (0..1) to an opaque color.
func HSL(h int, s, l float64) color.RGBA {
	hh := math.Mod(float64(h), 360)
	if hh < 0 {
		hh += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(hh/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case hh < 60:
		r, g, b = c, x, 0
	case hh < 120:
		r, g, b = x, c, 0
	case hh < 180:
		r, g, b = 0, c, x
	case hh < 240:
		r, g, b = 0, x, c
	case hh < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 0xff}
}
