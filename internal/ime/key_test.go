package ime

import "testing"

// TestKeyvalToRune tests the X11 keysym to rune conversion.
func TestKeyvalToRune(t *testing.T) {
	tests := []struct {
		name   string
		keyval uint32
		want   rune
	}{
		// ASCII printable characters
		{"space", 0x20, ' '},
		{"letter A", 0x41, 'A'},
		{"letter a", 0x61, 'a'},
		{"digit 1", 0x31, '1'},
		{"tilde", 0x7e, '~'},

		// Extended Latin
		{"e acute", 0xe9, 'é'},
		{"pound", 0xa3, '£'},

		// Unicode keysyms
		{"open e", 0x0100025b, 'ɛ'},
		{"open o", 0x01000254, 'ɔ'},
		{"eng", 0x0100014b, 'ŋ'},

		// Non-character keys
		{"backspace", KeyBackSpace, 0},
		{"return", KeyReturn, 0},
		{"escape", KeyEscape, 0},
		{"shift", KeyShiftL, 0},
		{"function key", 0xffbe, 0}, // F1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewKeyEvent(tt.keyval, 0, 0, false).Rune()
			if got != tt.want {
				t.Errorf("Rune(0x%x) = %q, want %q", tt.keyval, got, tt.want)
			}
		})
	}
}

// TestModifierMasks pins the IBus wire values.
func TestModifierMasks(t *testing.T) {
	if ShiftMask != 1 {
		t.Errorf("ShiftMask = %d, want 1", ShiftMask)
	}
	if ControlMask != 4 {
		t.Errorf("ControlMask = %d, want 4", ControlMask)
	}
	if Mod1Mask != 8 {
		t.Errorf("Mod1Mask (Alt) = %d, want 8", Mod1Mask)
	}
	if ReleaseMask != 1<<30 {
		t.Errorf("ReleaseMask = %d, want 1<<30", ReleaseMask)
	}
}

func TestKeyEventState(t *testing.T) {
	press := NewKeyEvent('a', 38, ShiftMask|ReleaseMask, false)
	if press.Released() {
		t.Error("press reported as release")
	}
	if !press.Has(ShiftMask) {
		t.Error("shift lost")
	}

	release := NewKeyEvent('a', 38, 0, true)
	if !release.Released() {
		t.Error("release not reported")
	}

	if press.IsShortcut() {
		t.Error("shift alone is not a shortcut")
	}
	if !NewKeyEvent('c', 0, ControlMask, false).IsShortcut() {
		t.Error("ctrl+c should be a shortcut")
	}
	if !NewKeyEvent('x', 0, Mod1Mask|ShiftMask, false).IsShortcut() {
		t.Error("alt+shift+x should be a shortcut")
	}
}

func TestIsModifierKey(t *testing.T) {
	for _, k := range []uint32{KeyShiftL, KeyShiftR, KeyControlL, KeyControlR, KeyAltL, KeySuperR, KeyISOLevel3} {
		if !IsModifierKey(k) {
			t.Errorf("0x%x should be a modifier key", k)
		}
	}
	for _, k := range []uint32{'a', KeySpace, KeyReturn, KeyBackSpace} {
		if IsModifierKey(k) {
			t.Errorf("0x%x should not be a modifier key", k)
		}
	}
}
