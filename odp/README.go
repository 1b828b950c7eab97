/*
Package odp implements the openvswitch datapath action and flow key formats.

odp: short for openvswitch datapath protocol. Records are netlink attributes,
flat at the top level of an action list and nested inside SET and SAMPLE.

Parse functions decode an attribute stream once into typed records, so the
executor dispatches on Go types rather than re-reading raw bytes per action.
Attribute kinds this package does not know are kept as ActionUnknown or
KeyUnknown; deciding what to do with them belongs to the executor.
*/
package odp
