package cache

import (
	"fmt"
	"strings"
)

// Key joins parts with ':' after formatting each with %v.
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprintf("%v", p)
	}
	return strings.Join(s, ":")
}

// Pattern returns a glob that matches every key under prefix.
func Pattern(prefix ...interface{}) string {
	return Key(prefix...) + ":*"
}
