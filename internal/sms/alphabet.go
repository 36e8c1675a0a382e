package sms

// Encoding is the data coding of a message.
type Encoding int

const (
	// GSM7 is the GSM 03.38 default alphabet packed in septets.
	GSM7 Encoding = iota
	// UCS2 is big-endian UTF-16.
	UCS2
)

// String returns the encoding name as used by AT+CSCS.
func (e Encoding) String() string {
	if e == UCS2 {
		return "UCS2"
	}

	return "GSM"
}

const (
	// escapeSeptet introduces a character from the extension table.
	escapeSeptet = 0x1B

	// basicAlphabet lists the default alphabet in septet order.
	basicAlphabet = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞ\x1bÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"
)

var (
	// basicSeptets maps runes of the default alphabet to septets.
	//nolint:gochecknoglobals // Built once from basicAlphabet.
	basicSeptets = buildBasic()

	// extensionSeptets maps runes reachable through the escape septet.
	//nolint:gochecknoglobals // Read-only lookup table.
	extensionSeptets = map[rune]byte{
		'\f': 0x0A,
		'^':  0x14,
		'{':  0x28,
		'}':  0x29,
		'\\': 0x2F,
		'[':  0x3C,
		'~':  0x3D,
		']':  0x3E,
		'|':  0x40,
		'€':  0x65,
	}
)

// buildBasic indexes basicAlphabet by rune.
func buildBasic() map[rune]byte {
	table := make(map[rune]byte, 128)

	var septet byte

	for _, r := range basicAlphabet {
		if septet != escapeSeptet {
			table[r] = septet
		}

		septet++
	}

	return table
}

// septets returns the septets encoding r and whether r is representable.
func septets(r rune) ([]byte, bool) {
	if s, ok := basicSeptets[r]; ok {
		return []byte{s}, true
	}

	if s, ok := extensionSeptets[r]; ok {
		return []byte{escapeSeptet, s}, true
	}

	return nil, false
}

// IsGSM7 reports whether every rune of text is in the default alphabet or its extension.
func IsGSM7(text string) bool {
	for _, r := range text {
		if _, ok := septets(r); !ok {
			return false
		}
	}

	return true
}
