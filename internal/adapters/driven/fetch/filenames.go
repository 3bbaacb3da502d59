package fetch

// DefaultExt is the suffix given to every saved resource. Content type is
// sniffed again at extraction time, so the suffix is only a convention.
const DefaultExt = ".pdf"

// GenerateFilename returns the name for index i in the bijective base-26
// sequence a, b, ..., z, aa, ab, ..., suffixed with ext.
func GenerateFilename(i int, ext string) string {
	if i < 0 {
		return ""
	}
	var buf [16]byte
	pos := len(buf)
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		pos--
		buf[pos] = byte('a' + (n-1)%26)
	}
	return string(buf[pos:]) + ext
}

// GenerateFilenames returns the first n names of the sequence.
func GenerateFilenames(n int, ext string) []string {
	if n <= 0 {
		return []string{}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = GenerateFilename(i, ext)
	}
	return names
}
