package canvas

import "image/color"

// Default approximate node size used when a type has no entry.
const (
	DefaultNodeWidth  = 280
	DefaultNodeHeight = 200
)

type footprint struct {
	w, h float64
}

// Widget sizes as rendered at zoom 1. Marquee selection and fit-to-content
// work against these, not measured DOM sizes.
var footprints = map[NodeType]footprint{
	NodeText:     {280, 200},
	NodeImage:    {300, 260},
	NodeVideo:    {320, 240},
	NodeAudio:    {280, 140},
	NodeDocument: {280, 220},
	NodeURL:      {280, 160},
	NodeAIModel:  {320, 280},
	NodeOutput:   {320, 220},
}

// FootprintOf returns the approximate width and height of a node type.
func FootprintOf(t NodeType) (w, h float64) {
	if f, ok := footprints[t]; ok {
		return f.w, f.h
	}
	return DefaultNodeWidth, DefaultNodeHeight
}

var palette = map[NodeType]color.RGBA{
	NodeText:     {0x3b, 0x82, 0xf6, 0xff},
	NodeImage:    {0x10, 0xb9, 0x81, 0xff},
	NodeVideo:    {0xef, 0x44, 0x44, 0xff},
	NodeAudio:    {0xf5, 0x9e, 0x0b, 0xff},
	NodeDocument: {0x8b, 0x5c, 0xf6, 0xff},
	NodeURL:      {0x06, 0xb6, 0xd4, 0xff},
	NodeAIModel:  {0xec, 0x48, 0x99, 0xff},
	NodeOutput:   {0x64, 0x74, 0x8b, 0xff},
}

// ColorOf returns the schematic colour for a node type.
func ColorOf(t NodeType) color.RGBA {
	if c, ok := palette[t]; ok {
		return c
	}
	return color.RGBA{0x9c, 0xa3, 0xaf, 0xff}
}
