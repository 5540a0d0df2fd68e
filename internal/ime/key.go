package ime

import "fmt"

// Modifiers is the IBus modifier state mask delivered with a key event.
type Modifiers uint32

// IBus key event state masks
const (
	ShiftMask   Modifiers = 1 << 0
	LockMask    Modifiers = 1 << 1
	ControlMask Modifiers = 1 << 2
	Mod1Mask    Modifiers = 1 << 3 // Alt
	Mod4Mask    Modifiers = 1 << 6 // Super/Meta
	SuperMask   Modifiers = 1 << 26
	HyperMask   Modifiers = 1 << 27
	MetaMask    Modifiers = 1 << 28
	ReleaseMask Modifiers = 1 << 30

	// commandMask covers modifiers that turn a key into a shortcut.
	commandMask = ControlMask | Mod1Mask | Mod4Mask | SuperMask | HyperMask | MetaMask
)

// Common X11 key symbols
const (
	KeySpace     uint32 = 0x0020
	KeyBackSpace uint32 = 0xff08
	KeyTab       uint32 = 0xff09
	KeyReturn    uint32 = 0xff0d
	KeyEscape    uint32 = 0xff1b
	KeyHome      uint32 = 0xff50
	KeyLeft      uint32 = 0xff51
	KeyUp        uint32 = 0xff52
	KeyRight     uint32 = 0xff53
	KeyDown      uint32 = 0xff54
	KeyPageUp    uint32 = 0xff55
	KeyPageDown  uint32 = 0xff56
	KeyEnd       uint32 = 0xff57
	KeyKPEnter   uint32 = 0xff8d
	KeyDelete    uint32 = 0xffff

	KeyShiftL    uint32 = 0xffe1
	KeyShiftR    uint32 = 0xffe2
	KeyControlL  uint32 = 0xffe3
	KeyControlR  uint32 = 0xffe4
	KeyCapsLock  uint32 = 0xffe5
	KeyShiftLock uint32 = 0xffe6
	KeyMetaL     uint32 = 0xffe7
	KeyMetaR     uint32 = 0xffe8
	KeyAltL      uint32 = 0xffe9
	KeyAltR      uint32 = 0xffea
	KeySuperL    uint32 = 0xffeb
	KeySuperR    uint32 = 0xffec
	KeyHyperL    uint32 = 0xffed
	KeyHyperR    uint32 = 0xffee
	KeyISOLevel3 uint32 = 0xfe03
)

// KeyEvent is one key press or release as delivered by the host.
type KeyEvent struct {
	// Keyval is the X11 keysym.
	Keyval uint32

	// Keycode is the hardware keycode.
	Keycode uint32

	// Modifiers is the modifier state, including ReleaseMask.
	Modifiers Modifiers
}

// NewKeyEvent builds a KeyEvent. A release sets ReleaseMask.
func NewKeyEvent(keyval, keycode uint32, mods Modifiers, release bool) KeyEvent {
	if release {
		mods |= ReleaseMask
	} else {
		mods &^= ReleaseMask
	}
	return KeyEvent{Keyval: keyval, Keycode: keycode, Modifiers: mods}
}

// Released reports whether this is a key release.
func (k KeyEvent) Released() bool {
	return k.Modifiers&ReleaseMask != 0
}

// Has reports whether all bits in m are set.
func (k KeyEvent) Has(m Modifiers) bool {
	return k.Modifiers&m == m
}

// IsShortcut reports whether a command modifier (Ctrl, Alt, Super...) is held.
func (k KeyEvent) IsShortcut() bool {
	return k.Modifiers&commandMask != 0
}

// Rune returns the character produced by the key, or 0.
func (k KeyEvent) Rune() rune {
	return keyvalToRune(k.Keyval)
}

func (k KeyEvent) String() string {
	state := "press"
	if k.Released() {
		state = "release"
	}
	return fmt.Sprintf("keyval=0x%04x keycode=%d mods=0x%x %s", k.Keyval, k.Keycode, uint32(k.Modifiers&^ReleaseMask), state)
}

// IsModifierKey reports whether keyval is a bare modifier key.
func IsModifierKey(keyval uint32) bool {
	switch keyval {
	case KeyShiftL, KeyShiftR, KeyControlL, KeyControlR, KeyCapsLock, KeyShiftLock,
		KeyMetaL, KeyMetaR, KeyAltL, KeyAltR, KeySuperL, KeySuperR,
		KeyHyperL, KeyHyperR, KeyISOLevel3:
		return true
	}
	return false
}

// keyvalToRune converts X11 keysym to Unicode rune.
func keyvalToRune(keyval uint32) rune {
	// Direct Unicode mapping for Latin-1 range
	if keyval >= 0x20 && keyval <= 0x7e {
		return rune(keyval)
	}

	// Extended Latin (ISO 8859-1)
	if keyval >= 0xa0 && keyval <= 0xff {
		return rune(keyval)
	}

	// Unicode keysyms (0x01000000 + codepoint)
	if keyval >= 0x01000100 && keyval <= 0x0110ffff {
		return rune(keyval - 0x01000000)
	}

	return 0
}
