// Package schema declares the types that cross the native boundary.
//
// Every record, array, or pointer shape that will be marshalled is
// described once with explicit schema values instead of being discovered
// through runtime introspection. Layout-affecting configuration (padding
// overrides, fixed array lengths, read-back markers) attaches to the
// schema at registration time. Validate enforces the supported nesting
// rules eagerly so that no unsupported layout survives to call time.
package schema
