// Package bridge executes calls across the managed/native boundary.
//
// The Invoker performs down-calls: it writes every input into native
// memory before invoking the symbol and reads every declared output back
// after it returns. NewCallback builds up-calls: native-callable function
// pointers dispatching into Go methods. Both sides scope their native
// allocations to an Arena, either a caller-owned one passed into the call
// or an implicit per-call one released on every exit path.
package bridge
