package transport

// fifo is a fixed-capacity circular byte queue. One slot is kept free to
// tell full from empty, so a fifo of size n holds n-1 bytes.
type fifo struct {
	buf   []byte
	read  int
	write int
}

func newFifo(size int) *fifo {
	return &fifo{buf: make([]byte, size)}
}

// Write appends as much of data as fits and returns the count stored.
func (f *fifo) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (f.write + 1) % len(f.buf)
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		written++
	}
	return written
}

// Read moves up to len(data) bytes out of the queue.
func (f *fifo) Read(data []byte) int {
	n := 0
	for n < len(data) && f.read != f.write {
		data[n] = f.buf[f.read]
		f.read = (f.read + 1) % len(f.buf)
		n++
	}
	return n
}

// Reset drops everything queued.
func (f *fifo) Reset() {
	f.read = 0
	f.write = 0
}
