package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/notary/pkg/audit"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
)

// runKeygenCmd implements `notaryd keygen`.
//
// Generates a fresh master seed and writes it to a keystore file with
// 0600 permissions. Namespace signing keys derive from the master seed
// via HKDF, so one keystore serves every configured namespace.
//
// Exit codes:
//
//	0 = keystore written
//	2 = runtime error (including an existing keystore; it is never
//	    overwritten)
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var keystorePath string
	cmd.StringVar(&keystorePath, "keystore", "data/keystore.json", "Keystore file to create")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	seed, err := crypto.GenerateSeed()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := crypto.SaveKeystore(keystorePath, seed); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	keyring, err := crypto.NewKeyring(seed)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	masterKeyID := crypto.KeyIDFor(keyring.MasterPublicKey())

	auditLog := audit.NewLoggerWithWriter(stdout)
	_ = auditLog.Record(context.Background(), audit.EventKeyGenerated, "", map[string]any{
		"keystore": keystorePath,
		"key_id":   masterKeyID,
	})

	_, _ = fmt.Fprintf(stdout, "Keystore written to %s\n", keystorePath)
	_, _ = fmt.Fprintf(stdout, "Master key ID: %s\n", masterKeyID)
	return 0
}
