// gen-keypair generates an ed25519 keypair for signing driver .so
// releases. The public half goes in a trusted-keys file referenced by
// gateway.json's registry.trusted_key_paths; the private half signs a
// driver with the registry's release tooling and is never read by
// gatewayd itself.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	// rand.Reader uses /dev/urandom on Linux
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "DRIVER_SIGNING_PUBLIC_KEY=%#v\nDRIVER_SIGNING_PRIVATE_KEY=%#v\n",
		base64.StdEncoding.EncodeToString(pub),
		base64.StdEncoding.EncodeToString(priv))
}
