package testing

import (
	"math/rand"
	"strings"
)

const hexSet = "0123456789abcdef"

// RandString generates random string with 10 symbols length from lower- and uppercase alphabet
func RandString() string {
	var out strings.Builder
	charSet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	length := 10
	for i := 0; i < length; i++ {
		out.WriteByte(charSet[rand.Intn(len(charSet))])
	}
	return out.String()
}

// RandID generates a LINE-shaped id: prefix followed by 32 hex digits,
// e.g. RandID("U") for users and RandID("C") for groups
func RandID(prefix string) string {
	var out strings.Builder
	out.WriteString(prefix)
	for i := 0; i < 32; i++ {
		out.WriteByte(hexSet[rand.Intn(len(hexSet))])
	}
	return out.String()
}
