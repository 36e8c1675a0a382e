package sms

import (
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

const (
	// SingleGSM7Septets is the payload of a single GSM 7-bit message.
	SingleGSM7Septets = 160
	// PartGSM7Septets is the payload of a concatenated GSM 7-bit part.
	PartGSM7Septets = 153
	// SingleUCS2Units is the payload of a single UCS-2 message in UTF-16 units.
	SingleUCS2Units = 70
	// PartUCS2Units is the payload of a concatenated UCS-2 part.
	PartUCS2Units = 67
)

// Normalize returns text in NFC so composed characters map to the alphabet.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// EncodingOf picks the cheapest encoding able to carry text.
func EncodingOf(text string) Encoding {
	if IsGSM7(Normalize(text)) {
		return GSM7
	}

	return UCS2
}

// Split divides text into the parts needed to send it.
// A text that fits a single message is returned as one part.
func Split(text string) (Encoding, []string) {
	text = Normalize(text)

	if IsGSM7(text) {
		return GSM7, splitBy(text, SingleGSM7Septets, PartGSM7Septets, gsm7Length)
	}

	return UCS2, splitBy(text, SingleUCS2Units, PartUCS2Units, ucs2Length)
}

// gsm7Length is the number of septets r occupies.
func gsm7Length(r rune) int {
	s, _ := septets(r)

	return len(s)
}

// ucs2Length is the number of UTF-16 units r occupies.
func ucs2Length(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}

	return 1
}

// splitBy cuts text on rune boundaries so no part exceeds the limit.
func splitBy(text string, single, part int, size func(rune) int) []string {
	total := 0
	for _, r := range text {
		total += size(r)
	}

	if total <= single {
		return []string{text}
	}

	var (
		parts []string
		start int
		used  int
	)

	for i, r := range text {
		n := size(r)
		if used+n > part {
			parts = append(parts, text[start:i])
			start = i
			used = 0
		}

		used += n
	}

	if start < len(text) {
		parts = append(parts, text[start:])
	}

	return parts
}
