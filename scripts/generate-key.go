// Package main is a development utility that prints what a fresh local setup
// needs: a random PT_JWT_SECRET and an API key for a seeded company, with a
// ready-to-run SQL INSERT. Production keys should be created through the API
// or the server's apikey command so they carry an expiry.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"

	"github.com/policytracker/policy-tracker/internal/auth"
)

func main() {
	companyID := flag.Int64("company", 1, "company the API key belongs to")
	name := flag.String("name", "local development", "API key name")
	prefix := flag.String("prefix", "pt_", "API key prefix")
	flag.Parse()

	secret := make([]byte, 48)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	key, hash, display, err := auth.GenerateAPIKey(*prefix)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("JWT secret")
	fmt.Println("==========================================================")
	fmt.Printf("export PT_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
	fmt.Println("\n==========================================================")
	fmt.Println("API key")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Key: %s\n", key)
	fmt.Printf("Display Prefix: %s\n", display)
	fmt.Printf(`
INSERT INTO api_keys (company_id, name, key_hash, key_prefix)
VALUES (%d, '%s', '%s', '%s');
`, *companyID, *name, hash, display)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", key)
	fmt.Println("==========================================================")
}
