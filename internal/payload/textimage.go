package payload

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	strokeWidth = 2
	minFontSize = 6
)

// TextRenderer rasterizes guide text: white glyphs with a black outline,
// centered on an opaque black canvas.
type TextRenderer struct {
	font *opentype.Font
}

// NewTextRenderer loads the TrueType/OpenType font at path. An empty path
// selects the bundled Go Regular face, which lacks CJK glyphs.
func NewTextRenderer(path string) (*TextRenderer, error) {
	data := goregular.TTF
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("payload: read font: %w", err)
		}
		data = raw
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("payload: parse font: %w", err)
	}
	return &TextRenderer{font: f}, nil
}

// Render returns the PNG encoding of text drawn on a width x height canvas.
func (r *TextRenderer) Render(text string, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("payload: invalid canvas %dx%d", width, height)
	}
	lines := splitLines(text)

	longest := 1
	for _, line := range lines {
		if n := utf8.RuneCountInString(line); n > longest {
			longest = n
		}
	}
	size := width / longest
	if size < minFontSize {
		size = minFontSize
	}

	face, err := r.fit(lines, size, width)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	var wrapped []string
	for _, line := range lines {
		wrapped = append(wrapped, wrapLine(face, line, width-2*strokeWidth)...)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil() + 2*strokeWidth
	y := (height - lineHeight*len(wrapped)) / 2
	for _, line := range wrapped {
		advance := font.MeasureString(face, line).Ceil()
		x := (width - advance) / 2
		baseline := y + strokeWidth + metrics.Ascent.Ceil()
		drawOutlined(canvas, face, line, x, baseline)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("payload: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// fit shrinks the font until the widest line fits or the minimum size is
// reached.
func (r *TextRenderer) fit(lines []string, size, width int) (font.Face, error) {
	for {
		face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
			Size:    float64(size),
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("payload: font face: %w", err)
		}
		if size <= minFontSize || widest(face, lines)+2*strokeWidth <= width {
			return face, nil
		}
		face.Close()
		size--
	}
}

func widest(face font.Face, lines []string) int {
	most := 0
	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > most {
			most = w
		}
	}
	return most
}

func drawOutlined(dst draw.Image, face font.Face, text string, x, baseline int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face}
	for dy := -strokeWidth; dy <= strokeWidth; dy++ {
		for dx := -strokeWidth; dx <= strokeWidth; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d.Dot = fixed.P(x+dx, baseline+dy)
			d.DrawString(text)
		}
	}
	d.Src = image.NewUniform(color.White)
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, strings.Trim(line, "\r"))
	}
	return lines
}

// wrapLine breaks line into pieces no wider than maxWidth, preferring
// spaces and falling back to rune boundaries for unspaced scripts. Glyph
// advances are summed once per rune so the cost stays linear in the line.
func wrapLine(face font.Face, line string, maxWidth int) []string {
	if font.MeasureString(face, line).Ceil() <= maxWidth {
		return []string{line}
	}
	var out []string
	runes := []rune(line)
	for len(runes) > 0 {
		cut := fitRunes(face, runes, maxWidth)
		if cut < len(runes) {
			for i := cut; i > 0; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
		}
		out = append(out, strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace))
		rest := runes[cut:]
		for len(rest) > 0 && unicode.IsSpace(rest[0]) {
			rest = rest[1:]
		}
		runes = rest
	}
	return out
}

// fitRunes returns how many leading runes fit in maxWidth, at least one.
func fitRunes(face font.Face, runes []rune, maxWidth int) int {
	limit := fixed.I(maxWidth)
	var width fixed.Int26_6
	prev := rune(-1)
	for i, r := range runes {
		if prev >= 0 {
			width += face.Kern(prev, r)
		}
		// Missing glyphs take no space, as in font.MeasureString.
		advance, ok := face.GlyphAdvance(r)
		if !ok {
			continue
		}
		width += advance
		if width > limit {
			return max(i, 1)
		}
		prev = r
	}
	return len(runes)
}
