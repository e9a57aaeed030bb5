package overlay

import (
	"image/color"
	"strings"
)

// categoryColors is the fixed lookup table of box colors keyed by lowercased
// category name.
var categoryColors = map[string]color.RGBA{
	"black blight":   {R: 0x1f, G: 0x29, B: 0x37, A: 0xff},
	"blister blight": {R: 0xdc, G: 0x26, B: 0x26, A: 0xff},
	"brown blight":   {R: 0xea, G: 0x58, B: 0x0c, A: 0xff},
	"grey blight":    {R: 0x6b, G: 0x72, B: 0x80, A: 0xff},
	"healthy":        {R: 0x16, G: 0xa3, B: 0x4a, A: 0xff},
	"lichen":         {R: 0x0d, G: 0x94, B: 0x88, A: 0xff},
	"magnesium":      {R: 0x93, G: 0x33, B: 0xea, A: 0xff},
	"nitrogen":       {R: 0x4f, G: 0x46, B: 0xe5, A: 0xff},
	"potassium":      {R: 0xea, G: 0xb3, B: 0x08, A: 0xff},
	"sulfur":         {R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
	"redrust":        {R: 0xf4, G: 0x3f, B: 0x5e, A: 0xff},
	"sunburn":        {R: 0xf9, G: 0x73, B: 0x16, A: 0xff},
	"mita":           {R: 0xec, G: 0x48, B: 0x99, A: 0xff},
}

// neutralColor is used for categories without an assigned color.
var neutralColor = color.RGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}

// CategoryColor returns the box color for a category, falling back to a
// neutral gray for unknown names.
func CategoryColor(category string) color.RGBA {
	if c, ok := categoryColors[strings.ToLower(category)]; ok {
		return c
	}
	return neutralColor
}
