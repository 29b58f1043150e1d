package console

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// skipWhitespace returns the number of leading whitespace bytes
func skipWhitespace(data []byte) (index int) {
	for index < len(data) && isSpace(data[index]) {
		index++
	}
	return index
}

// skipToDelimiter returns the length of the unquoted word at the start of data
func skipToDelimiter(data []byte) (index int) {
	for index < len(data) {
		b := data[index]
		if isSpace(b) || b == ';' || b == '#' || b == '"' {
			break
		}
		index++
	}
	return index
}
