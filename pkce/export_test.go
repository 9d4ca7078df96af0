package pkce

import "io"

// SetRandReader swaps the random source and returns a func restoring it.
func SetRandReader(r io.Reader) func() {
	prev := randReader
	randReader = r
	return func() { randReader = prev }
}
