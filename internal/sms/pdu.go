package sms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

const (
	// firstOctetSubmit marks an SMS-SUBMIT without validity period.
	firstOctetSubmit = 0x01
	// firstOctetUDHI flags a user data header.
	firstOctetUDHI = 0x40

	// typeInternational is the type-of-address for numbers with a leading '+'.
	typeInternational = 0x91
	// typeUnknown is the type-of-address for national numbers.
	typeUnknown = 0x81

	// dcsGSM7 and dcsUCS2 are the data coding schemes.
	dcsGSM7 = 0x00
	dcsUCS2 = 0x08

	// concatHeaderLength is the size of the 8-bit reference concatenation UDH.
	concatHeaderLength = 6
	// concatHeaderSeptets is the UDH plus fill bits expressed in septets.
	concatHeaderSeptets = 7

	// maxParts is the most parts a concatenated message may have.
	maxParts = 255
)

var (
	// errInvalidNumber is returned for destination numbers with non-dialable characters.
	errInvalidNumber = errors.New("invalid destination number")
	// errTooManyParts is returned when a message needs more than maxParts parts.
	errTooManyParts = errors.New("too many message parts")
	// errNotGSM7 is returned when a GSM7 part contains characters outside the alphabet.
	errNotGSM7 = errors.New("text is not representable in GSM 7-bit")
)

// PDU is one SMS-SUBMIT ready for AT+CMGS in PDU mode.
type PDU struct {
	// Hex is the full PDU including the empty SMSC field.
	Hex string
	// Length is the TPDU length passed to AT+CMGS (excludes the SMSC field).
	Length int
}

// SubmitPDUs encodes parts as SMS-SUBMIT PDUs addressed to number.
// More than one part adds a concatenation header with reference ref.
func SubmitPDUs(number string, enc Encoding, parts []string, ref byte) ([]PDU, error) {
	if len(parts) > maxParts {
		return nil, fmt.Errorf("%w: %w: %d", fall.ErrEncoding, errTooManyParts, len(parts))
	}

	address, err := encodeAddress(number)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fall.ErrEncoding, err)
	}

	concatenated := len(parts) > 1
	pdus := make([]PDU, 0, len(parts))

	for i, part := range parts {
		var header []byte
		if concatenated {
			header = []byte{0x05, 0x00, 0x03, ref, byte(len(parts)), byte(i + 1)}
		}

		userData, udl, dcs, err := encodeUserData(enc, part, header)
		if err != nil {
			return nil, fmt.Errorf("%w: part %d: %w", fall.ErrEncoding, i+1, err)
		}

		first := byte(firstOctetSubmit)
		if concatenated {
			first |= firstOctetUDHI
		}

		tpdu := make([]byte, 0, 4+len(address)+3+len(userData))
		tpdu = append(tpdu, first, 0x00)
		tpdu = append(tpdu, address...)
		tpdu = append(tpdu, 0x00, dcs, byte(udl))
		tpdu = append(tpdu, userData...)

		pdus = append(pdus, PDU{
			Hex:    "00" + strings.ToUpper(hex.EncodeToString(tpdu)),
			Length: len(tpdu),
		})
	}

	return pdus, nil
}

// encodeAddress renders the destination address field.
func encodeAddress(number string) ([]byte, error) {
	number = strings.TrimSpace(number)
	addressType := byte(typeUnknown)

	if strings.HasPrefix(number, "+") {
		addressType = typeInternational
		number = number[1:]
	}

	digits := make([]byte, 0, len(number))

	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, byte(r-'0'))
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return nil, fmt.Errorf("%w: %q", errInvalidNumber, number)
		}
	}

	if len(digits) == 0 {
		return nil, fmt.Errorf("%w: empty", errInvalidNumber)
	}

	field := []byte{byte(len(digits)), addressType}

	for i := 0; i < len(digits); i += 2 {
		low := digits[i]
		high := byte(0x0F)

		if i+1 < len(digits) {
			high = digits[i+1]
		}

		field = append(field, high<<4|low)
	}

	return field, nil
}

// encodeUserData returns the user data, its TP-UDL and the DCS.
func encodeUserData(enc Encoding, text string, header []byte) ([]byte, int, byte, error) {
	if enc == UCS2 {
		body, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, 0, 0, err
		}

		data := append(append([]byte(nil), header...), body...)

		return data, len(data), dcsUCS2, nil
	}

	var septetStream []byte

	for _, r := range text {
		s, ok := septets(r)
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: %q", errNotGSM7, r)
		}

		septetStream = append(septetStream, s...)
	}

	if len(header) == 0 {
		return packSeptets(septetStream, 0), len(septetStream), dcsGSM7, nil
	}

	// The header occupies concatHeaderSeptets septets including one fill bit.
	packed := packSeptets(septetStream, concatHeaderSeptets*7-concatHeaderLength*8)
	data := append(append([]byte(nil), header...), packed...)

	return data, concatHeaderSeptets + len(septetStream), dcsGSM7, nil
}

// packSeptets packs 7-bit values little-endian, preceded by fill padding bits.
func packSeptets(values []byte, fill int) []byte {
	totalBits := fill + len(values)*7
	out := make([]byte, (totalBits+7)/8)
	bit := fill

	for _, v := range values {
		for b := range 7 {
			if v&(1<<b) != 0 {
				out[bit/8] |= 1 << (bit % 8)
			}

			bit++
		}
	}

	return out
}
