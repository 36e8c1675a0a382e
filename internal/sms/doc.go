// Package sms implements the short-message encodings used by the alert
// dispatcher and the GSM modem.
//
// Split divides a text into the parts a handset would send: GSM 7-bit when
// every character is in the default alphabet (160 septets single, 153 per
// concatenated part), UCS-2 otherwise (70 and 67 code units). SubmitPDUs
// renders the parts as SMS-SUBMIT PDUs with a concatenation header.
package sms
