package audio

// Drain consumes and discards everything remaining on ch until it is closed.
// Useful to unblock a producer after the consumer has decided to stop early.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// Collect consumes ch until it is closed and returns everything received.
func Collect[T any](ch <-chan T) []T {
	var out []T
	for v := range ch {
		out = append(out, v)
	}
	return out
}
