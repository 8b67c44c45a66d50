// Package ir provides the value types shared by every layer of the topic
// update engine.
//
// A topic value is a small tagged union mirroring what a spreadsheet cell can
// hold: nothing, an integer, a real number, text, or an error code. The
// package also owns the canonical JSON encoding used for journals, digests
// and golden snapshots.
//
// ir imports nothing internal; every other package may import it.
package ir
