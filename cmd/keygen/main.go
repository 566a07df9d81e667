// keygen generates the symmetric key material authcore needs at startup:
// an HMAC-SHA256 signing key for C6's token service (replacing the
// teacher's RSA keypair, since spec.md §4.4 mandates HMAC, not RS256). It
// also prints a random 32-byte LOCAL_AES_MASTER_KEY; nothing in authcore
// reads that variable, and field encryption (C5) always takes its data keys
// from KMS.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	signingKey, err := randomHex(32)
	if err != nil {
		fmt.Printf("failed to generate signing key: %v\n", err)
		os.Exit(1)
	}

	aesKey, err := randomHex(32)
	if err != nil {
		fmt.Printf("failed to generate aes key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- COPY BELOW TO .env.local ---")
	fmt.Printf("JWT_SIGNING_SECRET=%s\n", signingKey)
	fmt.Printf("LOCAL_AES_MASTER_KEY=%s\n", aesKey)
	fmt.Println("--------------------------------")
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
