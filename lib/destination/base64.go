// Package destination implements the I2P destination wire format: parsing
// and serializing the Identity blob the SAM bridge hands back in
// DESTINATION=/FROM_DESTINATION=/PUB=/PRIV= fields, and the I2P-flavored
// Base64 encoding those fields are transmitted in.
package destination

import "encoding/base64"

// i2pEncoding is standard Base64 with I2P's substituted alphabet: '+'
// becomes '-' and '/' becomes '~'. See SAMv3.md ("Base 64 encoding must
// use the I2P standard Base 64 alphabet 'A-Z, a-z, 0-9, -, ~'").
var i2pEncoding = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-~",
).WithPadding('=')

// Base64Encode encodes data using the I2P Base64 alphabet.
func Base64Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return i2pEncoding.EncodeToString(data)
}

// Base64Decode decodes an I2P Base64 string. Returns an error if the input
// contains characters outside the I2P alphabet or has invalid padding.
func Base64Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return i2pEncoding.DecodeString(s)
}

// StdToI2PBase64 converts standard Base64 to I2P Base64 by substituting
// '+' with '-' and '/' with '~'.
func StdToI2PBase64(s string) string {
	out := make([]byte, len(s))
	for i, c := range []byte(s) {
		switch c {
		case '+':
			out[i] = '-'
		case '/':
			out[i] = '~'
		default:
			out[i] = c
		}
	}
	return string(out)
}

// I2PToStdBase64 converts I2P Base64 to standard Base64 by substituting
// '-' with '+' and '~' with '/'.
func I2PToStdBase64(s string) string {
	out := make([]byte, len(s))
	for i, c := range []byte(s) {
		switch c {
		case '-':
			out[i] = '+'
		case '~':
			out[i] = '/'
		default:
			out[i] = c
		}
	}
	return string(out)
}
