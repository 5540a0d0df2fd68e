// Package ime adapts IBus input contexts onto a composition engine.
//
// # Architecture Overview
//
// The IBus daemon creates one engine object per input context through
// the factory exported by the Registrar. Each engine object owns a
// Session, and each Session owns one Composer:
//
//	ibus-daemon ──CreateEngine──→ Registrar ──→ EngineObject (D-Bus)
//	                                                 │ mutex
//	                                                 ↓
//	                                              Session ──→ Composer
//	                                                 │
//	                                                 ↓
//	                                     Host (signals back to the daemon)
//
// # Session Model
//
// A Session moves between three states:
//
//	Disabled ──Enable──→ Enabled ──Disable──→ Disabled
//	    └──────────Destroy──────────┴──────────→ Destroyed
//
// Focus is tracked independently and latched in any live state, because
// IBus may deliver FocusIn before Enable. Keys are routed to the
// Composer only while the session is Enabled and focused. Every
// transition that abandons input (Disable, FocusOut, Reset) clears the
// preedit and hides the lookup table.
//
// The capability mask is frozen at the first Enable. Optional features
// such as surrounding text are requested through the Negotiator; a
// missing capability degrades behavior and is never fatal.
//
// # Candidates
//
// CandidateList holds the candidates of the current composition and
// pages them for display. Clicks arrive as indices on the visible page
// and are translated to absolute indices before reaching the Composer.
//
// # Wire Types
//
// IBusText, IBusLookupTable, IBusComponent and IBusEngineDesc are sent as
// D-Bus structs wrapped in variants; see TextVariant and friends.
//
// # Concurrency
//
// Session and CandidateList are not safe for concurrent use. godbus
// dispatches method calls concurrently, so EngineObject serializes every
// call on a per-engine mutex. The mutex alone does not keep arrival
// order: the Registrar's connection interceptor queues each engine call
// as it is read off the bus, and the exported methods wait their turn
// before entering the engine.
//
// A panic while serving a call is handed to the configured PanicHandler,
// the composition is dropped and the call reports the key as not
// consumed.
package ime
