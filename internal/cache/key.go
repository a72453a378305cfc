package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const KeyPrefix = "gql:"

// NormalizeQuery collapses whitespace so formatting never splits cache entries.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func HashKeyMaterial(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Key identifies a query by shape and variables. Map variables marshal with
// sorted keys, so equal variable sets give equal keys.
func Key(query string, variables any) string {
	vars, err := json.Marshal(variables)
	if err != nil {
		vars = []byte("null")
	}
	material := strings.Join([]string{
		"q=" + NormalizeQuery(query),
		"v=" + string(vars),
	}, "|")
	return KeyPrefix + HashKeyMaterial(material)
}
