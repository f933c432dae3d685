// Package downcall builds the managed-to-native call path.
//
// A NativeEntryPoint pairs a validated low-level shape with the backend
// trampoline that realizes it. Entry points are interned per shape and
// backend in a concurrent cache, so repeated and concurrent requests for the
// same shape converge on one shared invoker.
package downcall
