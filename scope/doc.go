// Package scope provides explicit lifetimes for native-visible resources.
//
// An upcall stub address is only meaningful while its owning scope is
// alive; native code must not retain the pointer past the scope's Close.
// There is no per-call timeout or cancellation — scope teardown is the one
// cleanup mechanism the bridge offers.
package scope
