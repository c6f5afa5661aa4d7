package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

// Generates a random HMAC signing secret for JWT_SECRET.
func main() {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	secret := base64.RawURLEncoding.EncodeToString(buf)
	fmt.Println("--- COPY BELOW TO .env.local ---")
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println("--------------------------------")
}
