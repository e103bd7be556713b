package document

// Splitter cuts text into fixed-size segments with overlap between
// neighbors. Sizes are measured in runes so multi-byte text never splits
// mid-character.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter creates a splitter. Out-of-range arguments are clamped so
// that size is at least one and overlap stays smaller than size; Split
// could otherwise loop forever on a non-positive step.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split returns the ordered segments of text. Empty text yields no segments.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{text}
	}

	step := s.chunkSize - s.chunkOverlap
	var segments []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end >= len(runes) {
			segments = append(segments, string(runes[start:]))
			break
		}
		segments = append(segments, string(runes[start:end]))
	}
	return segments
}
