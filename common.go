/*
Package godp implements an openvswitch style datapath action engine.

Flow lookup produces an action list in netlink attribute form. Package odp
decodes that list into typed records, and package odpsw executes them on a
packet, handing the result to output ports or to userspace.
*/
package godp

// Datapath is an opaque handle of the switch instance that owns the ports.
// The engine never looks inside; it only passes it to delivery callbacks.
type Datapath interface{}
