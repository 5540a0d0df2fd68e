// ibus-afrim is an IBus input method engine for the afrim family of
// sequence-based keyboards.
//
// Installation:
//  1. Copy the binary to /usr/local/bin/ibus-afrim
//  2. Run: ibus-afrim install
//  3. Restart IBus: ibus restart
//  4. Enable via: ibus-setup or GNOME Settings > Keyboard > Input Sources
//
// ibus-daemon starts the engine with --ibus. Started by hand, it registers
// its component with the running daemon instead.
package main

func main() {
	Execute()
}
