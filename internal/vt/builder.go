package vt

import "sync"

// parserState is the Builder's position within an escape sequence. State is
// preserved across Write calls so a sequence split across two PTY reads
// parses correctly.
type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
	stateCSIIntermediate // saw a CSI intermediate byte (e.g. the space before 'q')
	stateString          // OSC/DCS/PM/APC body, skipped until its terminator
	stateStringEscape    // saw ESC while in stateString; looking for '\\'
)

// Builder is the TerminalSnapshotBuilder from spec §4.3: one parser per
// session, consuming PTY bytes and maintaining a Snapshot. It never panics
// on malformed input — unknown sequences are dropped from the snapshot but
// the caller is still responsible for forwarding the raw bytes to history
// and subscribers.
type Builder struct {
	mu    sync.Mutex
	snap  Snapshot
	rows  int
	state parserState
	csi   csiAccum
}

type csiAccum struct {
	private  byte // '?', '<', '=', '>', or 0
	params   []int
	cur      int
	curSet   bool
	intermed byte // intermediate byte observed (e.g. ' ' before 'q'), or 0
}

func (c *csiAccum) reset() {
	c.private = 0
	c.params = c.params[:0]
	c.cur = 0
	c.curSet = false
	c.intermed = 0
}

// NewBuilder returns a Builder seeded with the default snapshot at the given
// size (rows is needed to validate DECSTBM margins).
func NewBuilder(rows int) *Builder {
	return &Builder{snap: Default(), rows: rows}
}

// Snapshot returns a deep-enough copy of the current state.
func (b *Builder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.Clone()
}

// Resize updates the row count used to validate scroll regions and clears
// any previously set scroll region, per spec §4.6 ("Resizes ... clear the
// scroll region").
func (b *Builder) Resize(rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = rows
	b.snap.ScrollRegion = nil
}

// Write feeds a chunk of PTY output through the parser. It never returns an
// error: malformed sequences are absorbed silently.
func (b *Builder) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range p {
		b.step(c)
	}
}

func (b *Builder) step(c byte) {
	switch b.state {
	case stateGround:
		if c == 0x1B {
			b.state = stateEscape
		}

	case stateEscape:
		switch c {
		case '[':
			b.csi.reset()
			b.state = stateCSI
		case ']', 'P', '^', '_':
			b.state = stateString
		case 'c':
			b.snap = Default()
			b.state = stateGround
		default:
			// Two-byte escape with no semantics this snapshot tracks.
			b.state = stateGround
		}

	case stateCSI, stateCSIIntermediate:
		b.stepCSI(c)

	case stateString:
		if c == 0x07 {
			b.state = stateGround
		} else if c == 0x1B {
			b.state = stateStringEscape
		}

	case stateStringEscape:
		if c == '\\' {
			b.state = stateGround
		} else if c != 0x1B {
			b.state = stateString
		}
	}
}

func (b *Builder) stepCSI(c byte) {
	switch {
	case c >= '0' && c <= '9':
		b.csi.cur = b.csi.cur*10 + int(c-'0')
		b.csi.curSet = true
		b.state = stateCSI

	case c == ';':
		b.csi.params = append(b.csi.params, paramOrDefault(b.csi.cur, b.csi.curSet))
		b.csi.cur = 0
		b.csi.curSet = false
		b.state = stateCSI

	case c == '?' || c == '<' || c == '=' || c == '>':
		if len(b.csi.params) == 0 && !b.csi.curSet {
			b.csi.private = c
		}
		b.state = stateCSI

	case c >= 0x20 && c <= 0x2F:
		b.csi.intermed = c
		b.state = stateCSIIntermediate

	case c >= 0x40 && c <= 0x7E:
		b.csi.params = append(b.csi.params, paramOrDefault(b.csi.cur, b.csi.curSet))
		b.applyCSI(c)
		b.state = stateGround

	default:
		// Stray control byte inside a CSI sequence; abandon it.
		b.state = stateGround
	}
}

func paramOrDefault(v int, set bool) int {
	if !set {
		return 0
	}
	return v
}

func (b *Builder) applyCSI(final byte) {
	p := b.csi.params
	switch {
	case final == 'm' && b.csi.private == 0:
		b.applySGR(p)

	case final == 'q' && b.csi.intermed == ' ':
		b.applyCursorShape(firstParam(p, 0))

	case final == 'r' && b.csi.private == 0:
		b.applyScrollRegion(p)

	case final == 'h' && b.csi.private == '?':
		b.applyDECPrivate(p, true)

	case final == 'l' && b.csi.private == '?':
		b.applyDECPrivate(p, false)

	case final == 'h' && b.csi.private == 0:
		b.applyStandard(p, true)

	case final == 'l' && b.csi.private == 0:
		b.applyStandard(p, false)
	}
}

func firstParam(p []int, def int) int {
	if len(p) == 0 {
		return def
	}
	return p[0]
}

func (b *Builder) applySGR(params []int) {
	if len(params) == 0 {
		params = []int{0}
	}
	attrs := &b.snap.Attrs
	for i := 0; i < len(params); i++ {
		code := params[i]
		switch {
		case code == 0:
			*attrs = DefaultAttributes()
		case code == 1:
			attrs.Intensity = IntensityBold
		case code == 2:
			attrs.Intensity = IntensityFaint
		case code == 22:
			attrs.Intensity = IntensityNormal
		case code == 3:
			attrs.Italic = true
		case code == 23:
			attrs.Italic = false
		case code == 4:
			attrs.Underline = UnderlineSingle
		case code == 21:
			attrs.Underline = UnderlineDouble
		case code == 24:
			attrs.Underline = UnderlineNone
		case code == 5:
			attrs.Blink = BlinkSlow
		case code == 6:
			attrs.Blink = BlinkRapid
		case code == 25:
			attrs.Blink = BlinkNone
		case code == 7:
			attrs.Inverse = true
		case code == 27:
			attrs.Inverse = false
		case code == 8:
			attrs.Hidden = true
		case code == 28:
			attrs.Hidden = false
		case code == 9:
			attrs.Strikethrough = true
		case code == 29:
			attrs.Strikethrough = false
		case code >= 30 && code <= 37:
			attrs.Foreground = Color{Kind: ColorAnsi, Index: uint8(code - 30)}
		case code == 38:
			i += consumeExtendedColor(params[i:], &attrs.Foreground)
		case code == 39:
			attrs.Foreground = DefaultColor
		case code >= 40 && code <= 47:
			attrs.Background = Color{Kind: ColorAnsi, Index: uint8(code - 40)}
		case code == 48:
			i += consumeExtendedColor(params[i:], &attrs.Background)
		case code == 49:
			attrs.Background = DefaultColor
		case code >= 90 && code <= 97:
			attrs.Foreground = Color{Kind: ColorAnsi, Index: uint8(code-90) + 8}
		case code >= 100 && code <= 107:
			attrs.Background = Color{Kind: ColorAnsi, Index: uint8(code-100) + 8}
		}
	}
}

// consumeExtendedColor parses a 38/48 sequence (indexed or true-color, with
// any fallback alpha discarded) starting at rest[0] (the 38 or 48 itself).
// It returns how many extra params beyond rest[0] were consumed.
func consumeExtendedColor(rest []int, out *Color) int {
	if len(rest) < 2 {
		return 0
	}
	switch rest[1] {
	case 5: // indexed: 38;5;n
		if len(rest) >= 3 {
			*out = Color{Kind: ColorAnsi, Index: uint8(rest[2])}
			return 2
		}
		return 1
	case 2: // true-color: 38;2;r;g;b (alpha, if present, is discarded)
		if len(rest) >= 5 {
			*out = Color{Kind: ColorRGB, R: uint8(rest[2]), G: uint8(rest[3]), B: uint8(rest[4])}
			return 4
		}
		return len(rest) - 1
	}
	return 0
}

func (b *Builder) applyCursorShape(code int) {
	shapes := [...]CursorShape{
		CursorBlinkingBlock, // 0: default -> blinking block
		CursorBlinkingBlock,
		CursorSteadyBlock,
		CursorBlinkingUnderline,
		CursorSteadyUnderline,
		CursorBlinkingBar,
		CursorSteadyBar,
	}
	if code >= 0 && code < len(shapes) {
		b.snap.CursorShape = shapes[code]
	}
}

func (b *Builder) applyScrollRegion(params []int) {
	if len(params) == 0 {
		// Bare CSI r resets to the full screen, i.e. no region at all.
		b.snap.ScrollRegion = nil
		return
	}
	top := firstParam(params, 1)
	bottom := 0
	if len(params) > 1 {
		bottom = params[1]
	}
	if bottom == 0 {
		bottom = b.rows
	}
	if top > 0 && top < bottom && bottom <= b.rows {
		b.snap.ScrollRegion = &ScrollRegion{Top: top, Bottom: bottom}
	} else {
		b.snap.ScrollRegion = nil
	}
}

// decPrivateCode is a DEC private mode number this builder gives explicit
// semantics to, beyond just recording it in DECPrivateModes.
const (
	decShowCursor       = 25
	decBlinkingCursor   = 12
	decOriginMode       = 6
	decAutoWrap         = 7
	decAltScreen1       = 47
	decAltScreen2       = 1047
	decAltScreen3       = 1049
	decMouseTracking    = 1000
	decMouseButtonEvent = 1002
	decMouseAnyEvent    = 1003
	decMouseSGR         = 1006
)

func (b *Builder) applyDECPrivate(params []int, enable bool) {
	for _, code := range params {
		if b.snap.DECPrivateModes == nil {
			b.snap.DECPrivateModes = map[int]bool{}
		}
		b.snap.DECPrivateModes[code] = enable

		switch code {
		case decShowCursor:
			b.snap.Modes.CursorVisible = enable
		case decBlinkingCursor:
			if enable {
				b.snap.CursorShape = CursorBlinkingBlock
			}
		case decOriginMode:
			b.snap.Modes.OriginMode = enable
		case decAutoWrap:
			b.snap.Modes.WrapMode = enable
		case decAltScreen1, decAltScreen2, decAltScreen3:
			b.snap.Modes.AltScreen = enable
		case decMouseTracking:
			b.snap.Modes.MouseTracking = enable
		case decMouseButtonEvent:
			b.snap.Modes.MouseButtonTracking = enable
		case decMouseAnyEvent:
			b.snap.Modes.MouseAnyEvent = enable
		case decMouseSGR:
			b.snap.Modes.MouseSGR = enable
		}
	}
}

const (
	stdInsertMode = 4
	stdShowCursor = 25
)

func (b *Builder) applyStandard(params []int, enable bool) {
	for _, code := range params {
		if b.snap.StandardModes == nil {
			b.snap.StandardModes = map[int]bool{}
		}
		b.snap.StandardModes[code] = enable

		switch code {
		case stdInsertMode:
			b.snap.Modes.InsertMode = enable
		case stdShowCursor:
			b.snap.Modes.CursorVisible = enable
		}
	}
}
