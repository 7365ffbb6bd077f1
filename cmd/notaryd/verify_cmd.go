package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/archive"
	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/merkle"
	"github.com/Mindburn-Labs/notary/pkg/sealer"
)

// verifyReport is the structured outcome of `notaryd verify`.
type verifyReport struct {
	Verified bool          `json:"verified"`
	Block    blockSummary  `json:"block"`
	Checks   []checkResult `json:"checks"`
}

type blockSummary struct {
	Namespace  string `json:"namespace"`
	Height     uint64 `json:"height"`
	Count      uint32 `json:"count"`
	Commitment string `json:"commitment"`
}

type checkResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

// runVerifyCmd implements `notaryd verify`.
//
// Validates a sealed LogBlock file offline: signature against the
// notary's public key and, when the receipt set is supplied, the
// Merkle commitment, count and time range.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		blockPath    string
		pubKeyHex    string
		receiptsPath string
		jsonOutput   bool
	)
	cmd.StringVar(&blockPath, "block", "", "Path to archived LogBlock file (REQUIRED)")
	cmd.StringVar(&pubKeyHex, "pubkey", "", "Hex-encoded Ed25519 public key of the namespace (REQUIRED)")
	cmd.StringVar(&receiptsPath, "receipts", "", "Path to a JSON array of the block's receipts (optional)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if blockPath == "" || pubKeyHex == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --block and --pubkey are required")
		return 2
	}

	data, err := os.ReadFile(blockPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read block: %v\n", err)
		return 2
	}
	block, err := archive.Decode(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot decode block: %v\n", err)
		return 2
	}

	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		_, _ = fmt.Fprintln(stderr, "Error: --pubkey must be a 32-byte hex-encoded Ed25519 key")
		return 2
	}

	report := verifyReport{
		Verified: true,
		Block: blockSummary{
			Namespace:  block.Namespace,
			Height:     block.Height,
			Count:      block.Count,
			Commitment: block.Commitment.String(),
		},
	}
	report.addCheck("signature", verifySignature(block, pubKey))

	if receiptsPath != "" {
		receipts, rerr := loadReceipts(receiptsPath)
		if rerr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot load receipts: %v\n", rerr)
			return 2
		}
		report.addCheck("commitment", verifyCommitment(block, receipts))
		report.addCheck("count", verifyCount(block, receipts))
		report.addCheck("time_range", verifyTimeRange(block, receipts))
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else {
		for _, c := range report.Checks {
			mark := "PASS"
			if !c.Pass {
				mark = "FAIL"
			}
			if c.Reason != "" {
				_, _ = fmt.Fprintf(stdout, "%s  %s: %s\n", mark, c.Name, c.Reason)
			} else {
				_, _ = fmt.Fprintf(stdout, "%s  %s\n", mark, c.Name)
			}
		}
		_, _ = fmt.Fprintf(stdout, "block %s height=%d count=%d verified=%t\n",
			block.Namespace, block.Height, block.Count, report.Verified)
	}

	if !report.Verified {
		return 1
	}
	return 0
}

func (r *verifyReport) addCheck(name string, reason string) {
	pass := reason == ""
	if !pass {
		r.Verified = false
	}
	r.Checks = append(r.Checks, checkResult{Name: name, Pass: pass, Reason: reason})
}

// verifySignature returns an empty string on success, a reason on
// failure.
func verifySignature(block *contracts.LogBlock, pubKey ed25519.PublicKey) string {
	ok, err := sealer.VerifyBlock(block, pubKey)
	if err != nil {
		return err.Error()
	}
	if !ok {
		return "signature does not verify against the given public key"
	}
	return ""
}

func verifyCommitment(block *contracts.LogBlock, receipts []*contracts.Receipt) string {
	leaves := make([]contracts.Digest, len(receipts))
	for i, r := range receipts {
		leaves[i] = r.ContentHash
	}
	commitment, err := merkle.Commitment(leaves)
	if err != nil {
		return err.Error()
	}
	if commitment != block.Commitment {
		return fmt.Sprintf("recomputed %s, block carries %s", commitment, block.Commitment)
	}
	return ""
}

func verifyCount(block *contracts.LogBlock, receipts []*contracts.Receipt) string {
	if int(block.Count) != len(receipts) {
		return fmt.Sprintf("block count %d, %d receipts supplied", block.Count, len(receipts))
	}
	return ""
}

func verifyTimeRange(block *contracts.LogBlock, receipts []*contracts.Receipt) string {
	if len(receipts) == 0 {
		return "no receipts supplied"
	}
	from, to := receipts[0].Timestamp, receipts[0].Timestamp
	for _, r := range receipts[1:] {
		if r.Timestamp.Before(from) {
			from = r.Timestamp
		}
		if r.Timestamp.After(to) {
			to = r.Timestamp
		}
	}
	if !from.Equal(block.TimeRange.From) || !to.Equal(block.TimeRange.To) {
		return fmt.Sprintf("recomputed [%s, %s], block carries [%s, %s]",
			from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano),
			block.TimeRange.From.Format(time.RFC3339Nano),
			block.TimeRange.To.Format(time.RFC3339Nano))
	}
	return ""
}

func loadReceipts(path string) ([]*contracts.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var receipts []*contracts.Receipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		return nil, fmt.Errorf("parse receipts: %w", err)
	}
	return receipts, nil
}
