package ffibridge

// Resolver maps native symbol names to entry-point addresses.
// Implementations are supplied by the embedding application (dlsym, a static
// symbol table, a wasm export list). A miss must be reported as an error,
// never as a zero address.
type Resolver interface {
	Resolve(name string) (uintptr, error)
}
