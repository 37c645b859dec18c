// Package engine loads WebAssembly images as native libraries.
//
// It is the only package that touches wazero directly. Everything above
// it speaks the passage interfaces: exported functions become symbols,
// exported globals become named data, the guest's malloc/free pair backs
// allocation, and a host dispatch module routes guest up-calls to
// registered Go callbacks.
package engine
