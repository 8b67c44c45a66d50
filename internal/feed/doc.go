// Package feed compiles CUE feed definitions into topic value generators.
//
// A feed file declares the topics a server knows about and how their values
// are produced:
//
//	feed: {
//		name:     "quotes"
//		delay:    "2s"
//		interval: "1s"
//		topics: [
//			{key: 101, generator: "constant", value: "Value1"},
//			{key: 102, generator: "counter", start: 100, step: 5},
//			{key: 103, generator: "clock", layout: "15:04:05"},
//			{key: 104, generator: "echo"},
//		]
//	}
//
// Files are unified with the embedded #Feed schema, so type errors and
// unknown fields are reported with CUE positions. Validate checks the rules
// the schema cannot express.
package feed
