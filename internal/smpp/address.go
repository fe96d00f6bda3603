package smpp

// NormalizeMSISDN strips a leading "+" and every non-digit character,
// leaving the bare international number. An address with no digits at
// all normalizes to the empty string.
func NormalizeMSISDN(addr string) string {
	out := make([]byte, 0, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}
