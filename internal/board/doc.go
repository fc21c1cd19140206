// Package board provides the PCB test-data model shared by every other
// package in EPCore.
//
// The hierarchy is:
//
//	Board
//	  Component
//	    Pin
//	      IVCurve
//	        MeasureSettings
//
// Lower levels never reference upper ones. Identity is positional: a pin is
// addressed by its component index and its index within that component
// (PinRef), because neither JSON dialect assigns stable IDs.
//
// Mutators (AddComponent, AppendPin, AttachCurve) validate only the
// invariant they can break and fail with a typed error instead of
// truncating. JSON tags follow the universal (UFIV) dialect.
package board
