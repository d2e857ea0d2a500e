package vt

import "encoding/json"

// jsonColor mirrors Color for the MODES payload: {"kind":"default"} or
// {"kind":"ansi","index":9} or {"kind":"rgb","r":1,"g":2,"b":3}.
type jsonColor struct {
	Kind  string `json:"kind"`
	Index *uint8 `json:"index,omitempty"`
	R     *uint8 `json:"r,omitempty"`
	G     *uint8 `json:"g,omitempty"`
	B     *uint8 `json:"b,omitempty"`
}

func (c Color) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ColorAnsi:
		idx := c.Index
		return json.Marshal(jsonColor{Kind: "ansi", Index: &idx})
	case ColorRGB:
		r, g, b := c.R, c.G, c.B
		return json.Marshal(jsonColor{Kind: "rgb", R: &r, G: &g, B: &b})
	default:
		return json.Marshal(jsonColor{Kind: "default"})
	}
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var jc jsonColor
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}
	switch jc.Kind {
	case "ansi":
		*c = Color{Kind: ColorAnsi}
		if jc.Index != nil {
			c.Index = *jc.Index
		}
	case "rgb":
		*c = Color{Kind: ColorRGB}
		if jc.R != nil {
			c.R = *jc.R
		}
		if jc.G != nil {
			c.G = *jc.G
		}
		if jc.B != nil {
			c.B = *jc.B
		}
	default:
		*c = Color{Kind: ColorDefault}
	}
	return nil
}

func (i Intensity) MarshalJSON() ([]byte, error) {
	return json.Marshal([...]string{"Normal", "Bold", "Faint"}[i])
}

func (u Underline) MarshalJSON() ([]byte, error) {
	return json.Marshal([...]string{"None", "Single", "Double"}[u])
}

func (b Blink) MarshalJSON() ([]byte, error) {
	return json.Marshal([...]string{"None", "Slow", "Rapid"}[b])
}

func (s CursorShape) MarshalJSON() ([]byte, error) {
	names := [...]string{
		"Default", "BlinkingBlock", "SteadyBlock", "BlinkingUnderline",
		"SteadyUnderline", "BlinkingBar", "SteadyBar",
	}
	return json.Marshal(names[s])
}

// jsonSnapshot is the wire shape for the ATTACH response's MODES payload.
// Its top-level keys are snake_case; the nested Modes, Attributes,
// SavedCursor and ScrollRegion structs carry no json tags, so their keys are
// the Go field names (e.g. "AltScreen", "Foreground").
type jsonSnapshot struct {
	Modes           Modes          `json:"modes"`
	CursorShape     CursorShape    `json:"cursor_shape"`
	ScrollRegion    *ScrollRegion  `json:"scroll_region,omitempty"`
	Attrs           Attributes     `json:"attrs"`
	SavedMain       SavedCursor    `json:"saved_main"`
	SavedAlt        SavedCursor    `json:"saved_alt"`
	DECPrivateModes map[int]bool   `json:"dec_private_modes"`
	StandardModes   map[int]bool   `json:"standard_modes"`
}

// MarshalJSON emits the MODES payload described in spec §6.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonSnapshot{
		Modes:           s.Modes,
		CursorShape:     s.CursorShape,
		ScrollRegion:    s.ScrollRegion,
		Attrs:           s.Attrs,
		SavedMain:       s.SavedMain,
		SavedAlt:        s.SavedAlt,
		DECPrivateModes: s.DECPrivateModes,
		StandardModes:   s.StandardModes,
	})
}
