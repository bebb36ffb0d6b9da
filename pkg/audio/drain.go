package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to let an upstream goroutine finish when the remaining data is no
// longer wanted, e.g. after a write error on a recording.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
