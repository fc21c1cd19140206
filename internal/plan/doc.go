// Package plan presents a board's pins as one ordered test sequence.
//
// A Plan holds a reference to a board.Board and never copies its pins: the
// order (component by component, pin by pin) is recomputed from the board
// on every call, so pins added to or removed from the board are visible
// immediately. The plan owns only the cursor and scheduling metadata
// (default measurer, default multiplexer, per-pin output overrides).
//
// A Plan is not safe for concurrent use.
package plan
