package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
)

// generateSecret creates a random secret of n bytes, hex encoded
func generateSecret(n int) string {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("Unable to generate secret: %v", err)
	}
	return hex.EncodeToString(key)
}

func main() {
	size := flag.Int("bytes", 32, "Secret size in bytes")
	flag.Parse()

	// Printed as env assignments so the output can be appended to .env
	fmt.Printf("VPNBILL_API_ADMIN_KEY=%s\n", generateSecret(*size))
	fmt.Printf("VPNBILL_PAYMENT_WEBHOOK_SECRET=%s\n", generateSecret(*size))
}
