package render

import (
	"bytes"
	"fmt"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/yungbote/enneagram-backend/internal/scoring"
)

const (
	chartWidth  = 720
	chartHeight = 420
	marginLeft  = 56
	marginRight = 24
	marginTop   = 48
	marginBot   = 56
)

var (
	background = color.RGBA{0xfb, 0xfa, 0xf7, 0xff}
	axisColor  = color.RGBA{0x55, 0x55, 0x55, 0xff}
	barColor   = color.RGBA{0x4a, 0x6f, 0xa5, 0xff}
	topColor   = color.RGBA{0xd9, 0x7a, 0x2b, 0xff}
)

// ChartRenderer draws the nine type scores as a PNG bar chart.
type ChartRenderer struct {
	face font.Face
}

// NewChartRenderer uses the TTF at fontPath when given, otherwise the
// built-in bitmap face.
func NewChartRenderer(fontPath string) (*ChartRenderer, error) {
	var face font.Face = basicfont.Face7x13
	if fontPath != "" {
		f, err := loadFontFace(fontPath, 14)
		if err != nil {
			return nil, err
		}
		face = f
	}
	return &ChartRenderer{face: face}, nil
}

// ScoreChart renders bars in type order 1..9; the highest score is
// highlighted. Bars are scaled against the full 0..100 range.
func (r *ChartRenderer) ScoreChart(title string, scores map[scoring.TypeID]float64) ([]byte, error) {
	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetColor(background)
	dc.Clear()
	dc.SetFontFace(r.face)

	plotW := float64(chartWidth - marginLeft - marginRight)
	plotH := float64(chartHeight - marginTop - marginBot)
	baseY := float64(chartHeight - marginBot)

	dc.SetColor(axisColor)
	if title != "" {
		dc.DrawStringAnchored(title, float64(chartWidth)/2, float64(marginTop)/2, 0.5, 0.5)
	}
	dc.SetLineWidth(1)
	dc.DrawLine(marginLeft, baseY, float64(chartWidth-marginRight), baseY)
	dc.DrawLine(marginLeft, float64(marginTop), marginLeft, baseY)
	dc.Stroke()
	for _, tick := range []float64{0, 25, 50, 75, 100} {
		y := baseY - plotH*tick/scoring.FullScale
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", tick), marginLeft-8, y, 1, 0.5)
	}

	top := scoring.Sorted(scores)[0].Type
	slot := plotW / float64(len(scoring.TypeIDs))
	barW := slot * 0.6
	for i, id := range scoring.TypeIDs {
		v := scores[id]
		if v < 0 {
			v = 0
		}
		if v > scoring.FullScale {
			v = scoring.FullScale
		}
		h := plotH * v / scoring.FullScale
		x := marginLeft + slot*float64(i) + (slot-barW)/2

		if id == top && scores[id] > 0 {
			dc.SetColor(topColor)
		} else {
			dc.SetColor(barColor)
		}
		dc.DrawRectangle(x, baseY-h, barW, h)
		dc.Fill()

		dc.SetColor(axisColor)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", scores[id]), x+barW/2, baseY-h-10, 0.5, 0.5)
		dc.DrawStringAnchored("Type "+string(id), x+barW/2, baseY+16, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
