package telegram

// MaxMessageLen is the Bot API limit on message text, in characters.
const MaxMessageLen = 4096

// Split cuts text into chunks of at most limit characters. Each cut is made
// at the last newline inside the window (the newline opens the next chunk),
// or exactly at limit when the window has no newline past its first
// character. Empty text yields no chunks.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	if text == "" {
		return nil
	}

	rest := []rune(text)
	var out []string
	for len(rest) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if rest[i] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(rest[:cut]))
		rest = rest[cut:]
	}
	return append(out, string(rest))
}
