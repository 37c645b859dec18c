// Package types holds the compiled-type representation shared by the
// marshalling compiler, encoder, and decoder.
package types
