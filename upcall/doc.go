// Package upcall builds native-callable entry points for managed targets.
//
// Make splits a calling sequence into its argument and return moves,
// compiles (or, when disabled, interprets) the boxing transformation into an
// executable handle of the exact low-level shape, and registers it with the
// stub backend. The returned address lives exactly as long as its scope.
package upcall
