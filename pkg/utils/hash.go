package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// ContentHash hashes text after collapsing whitespace, so re-ingesting the
// same document with different formatting maps to the same digest.
func ContentHash(content string) string {
	return HashString(strings.Join(strings.Fields(content), " "))
}
