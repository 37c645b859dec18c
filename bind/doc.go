// Package bind turns interface declarations into bound method tables.
//
// A declaration pairs native method signatures with the managed types the
// caller uses. Linking compiles each method into a Descriptor exactly
// once (slot classification, layout resolution, validation) and resolves
// its symbol against a loaded library. Required symbols that are missing
// fail the whole link with a list of every absent name; optional ones
// stay in the table unresolved and fail recoverably when invoked.
package bind
