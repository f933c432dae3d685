// Package abi describes target calling conventions.
//
// A VMStorage names one physical location (register class + index, or a
// stack slot); a Descriptor bundles the register banks, shadow-space sizing
// and storage widths of one architecture/OS convention. Descriptors are
// immutable and supplied to the binding and stub layers, which never compute
// convention details themselves.
package abi
