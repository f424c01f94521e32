// seal-secret encrypts a studio credential (calendar service account JSON or
// SMTP password) with STUDIO_SECRETS_KEY so it can be stored in the studios
// table.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inkform/inkform/libs/secrets"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		key    = flag.String("key", os.Getenv("STUDIO_SECRETS_KEY"), "hex-encoded 32 byte key")
		file   = flag.String("file", "", "read the secret from this file instead of stdin")
		genKey = flag.Bool("gen-key", false, "print a new random key and exit")
	)
	flag.Parse()

	if *genKey {
		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			fatal(err.Error())
		}
		fmt.Println(hex.EncodeToString(raw[:]))
		return
	}

	if strings.TrimSpace(*key) == "" {
		fatal("STUDIO_SECRETS_KEY is required")
	}
	box, err := secrets.NewBox(*key)
	if err != nil {
		fatal(err.Error())
	}

	var in io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fatal(err.Error())
		}
		defer f.Close()
		in = f
	}
	plain, err := io.ReadAll(in)
	if err != nil {
		fatal(err.Error())
	}

	sealed, err := box.Seal(strings.TrimRight(string(plain), "\r\n"))
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(sealed)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
