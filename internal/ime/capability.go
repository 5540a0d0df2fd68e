package ime

import (
	"errors"
	"fmt"
	"strings"
)

// Capabilities is the IBus client capability bitmask.
type Capabilities uint32

// IBus client capabilities
const (
	CapPreeditText     Capabilities = 1 << 0
	CapAuxiliaryText   Capabilities = 1 << 1
	CapLookupTable     Capabilities = 1 << 2
	CapFocus           Capabilities = 1 << 3
	CapProperty        Capabilities = 1 << 4
	CapSurroundingText Capabilities = 1 << 5
	CapOSK             Capabilities = 1 << 6
	CapSyncProcessKey  Capabilities = 1 << 7
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapPreeditText, "preedit-text"},
	{CapAuxiliaryText, "auxiliary-text"},
	{CapLookupTable, "lookup-table"},
	{CapFocus, "focus"},
	{CapProperty, "property"},
	{CapSurroundingText, "surrounding-text"},
	{CapOSK, "osk"},
	{CapSyncProcessKey, "sync-process-key"},
}

// Has reports whether every bit of c is present.
func (caps Capabilities) Has(c Capabilities) bool {
	return caps&c == c
}

func (caps Capabilities) String() string {
	var names []string
	for _, n := range capabilityNames {
		if caps.Has(n.cap) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// activation is an optional host feature that needs an explicit signal
// from the engine before the host starts supplying it.
type activation struct {
	cap     Capabilities
	name    string
	request func(Host)
}

var activations = []activation{
	{
		cap:  CapSurroundingText,
		name: "surrounding-text",
		// Some clients only begin tracking surrounding text once the
		// engine asks for it. No reply is consumed.
		request: func(h Host) { h.RequireSurroundingText() },
	},
}

// Negotiator activates the optional host features a session relies on.
// It holds no state; repeated calls re-send the same requests.
type Negotiator struct{}

// Activate requests every optional feature present in caps. Missing
// features are reported as ErrUnavailableCapability; composition
// proceeds without them.
func (Negotiator) Activate(caps Capabilities, host Host) error {
	var errs []error
	for _, a := range activations {
		if !caps.Has(a.cap) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnavailableCapability, a.name))
			continue
		}
		a.request(host)
	}
	return errors.Join(errs...)
}
