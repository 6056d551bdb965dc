package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode"
)

// LinkCodeBytes: 16 байт дают 32 HEX-символа.
const LinkCodeBytes = 16

// NewLinkCode возвращает одноразовый код привязки Telegram в верхнем регистре.
func NewLinkCode(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = LinkCodeBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// NormalizeLinkCode очищает код, вставленный пользователем в чат (кавычки, пробелы, регистр).
func NormalizeLinkCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`“”«»<>.,;:()[]{}\\")
	s = strings.ToUpper(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Hex_Digit, r) {
			b.WriteRune(r)
		}
	}
	code := b.String()
	if len(code) != LinkCodeBytes*2 {
		return "", false
	}
	return code, true
}
