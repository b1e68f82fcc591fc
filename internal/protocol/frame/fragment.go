package frame

// FragmentCount returns how many fragments of at most mtu bytes carry n bytes.
func FragmentCount(n, mtu int) int {
	if n <= 0 || mtu <= 0 {
		return 0
	}
	return (n + mtu - 1) / mtu
}

// Split slices buf into consecutive fragments of at most mtu bytes. The
// fragments alias buf; nothing is copied. A non-positive mtu falls back to MTU.
func Split(buf []byte, mtu int) [][]byte {
	if mtu <= 0 {
		mtu = MTU
	}
	out := make([][]byte, 0, FragmentCount(len(buf), mtu))
	for off := 0; off < len(buf); off += mtu {
		end := off + mtu
		if end > len(buf) {
			end = len(buf)
		}
		out = append(out, buf[off:end])
	}
	return out
}
