package fileio

// Fletcher32 computes the Fletcher-32 checksum spec.md §4.1 mandates by
// name for the file header. Unlike the CRC32/xxhash checksums the rest
// of the retrieval pack reaches for, Fletcher-32 has no maintained Go
// package in the ecosystem (it predates and is algorithmically distinct
// from CRC — two running sums mod 65535, not a polynomial code), so this
// is a direct, small, stdlib-only implementation of the well-known
// algorithm rather than a third-party dependency.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32

	// Fletcher-32 operates on 16-bit words; an odd trailing byte is
	// treated as if padded with a zero high byte.
	i := 0
	for i+1 < len(data) {
		word := uint32(data[i]) | uint32(data[i+1])<<8
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
		i += 2
	}
	if i < len(data) {
		word := uint32(data[i])
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}

	return (sum2 << 16) | sum1
}
