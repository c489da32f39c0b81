package testsupport

// Payload returns size bytes filled with a repeating pattern. A size <= 0
// yields a single byte.
func Payload(size int64) []byte {
	if size <= 0 {
		size = 1
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte('a' + i%26)
	}
	return buf
}
