// Package host adapts the topic update engine to the calling convention of
// a polling spreadsheet host.
//
// The host speaks in status codes and output pointers: it passes targets for
// results and expects a status back. Binding translates each host call into
// engine operations and reports invalid arguments (nil targets) without
// touching engine state.
//
// Factory shares one LifecycleCounter across every instance it creates so
// the module can answer CanUnloadNow. Poller plays the host side in-process:
// it receives notifications, throttles refreshes and checks heartbeats.
package host
