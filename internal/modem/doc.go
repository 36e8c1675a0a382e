// Package modem drives a GSM modem over a serial port with AT commands.
//
// Modem implements the dispatcher's Messenger and Caller: multipart and
// UCS-2 messages go out in PDU mode (AT+CMGF=0), plain messages in text mode
// with the GSM character set, and calls are placed with ATD. Commands are
// serialized by a mutex and message submits are paced by a rate limiter.
package modem
