package contracts

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// SignablePrefix domain-separates LogBlock signable payloads from every
// other signed byte stream in the system.
const SignablePrefix = "notary:logblock:v1\x00"

// EncodeSignable renders the fixed byte layout the notary signs: the
// domain prefix, then big-endian fixed-width fields in declaration
// order. Namespace is uint16-length-prefixed UTF-8; timestamps are
// int64 UnixNano. Language-level serialization is never signed, so an
// independent reimplementation produces byte-identical payloads.
func EncodeSignable(b *LogBlock) ([]byte, error) {
	if len(b.Namespace) > math.MaxUint16 {
		return nil, fmt.Errorf("contracts: namespace is %d bytes, exceeds encoding limit %d", len(b.Namespace), math.MaxUint16)
	}

	out := make([]byte, 0, len(SignablePrefix)+2+2+len(b.Namespace)+8+DigestSize+4+8+8)
	out = append(out, SignablePrefix...)
	out = binary.BigEndian.AppendUint16(out, b.Version)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.Namespace)))
	out = append(out, b.Namespace...)
	out = binary.BigEndian.AppendUint64(out, b.Height)
	out = append(out, b.Commitment[:]...)
	out = binary.BigEndian.AppendUint32(out, b.Count)
	out = binary.BigEndian.AppendUint64(out, uint64(b.TimeRange.From.UnixNano()))
	out = binary.BigEndian.AppendUint64(out, uint64(b.TimeRange.To.UnixNano()))
	return out, nil
}

// DecodeReceipt parses a receipt from its JSON wire form.
func DecodeReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("contracts: receipt decode: %w", err)
	}
	return &r, nil
}

// EncodeLogBlock renders the JSON wire form used for transport and
// archival. The signable layout (EncodeSignable) is separate and fixed.
func EncodeLogBlock(b *LogBlock) ([]byte, error) {
	out, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("contracts: logblock encode: %w", err)
	}
	return out, nil
}

// DecodeLogBlock parses a LogBlock from its JSON wire form.
func DecodeLogBlock(data []byte) (*LogBlock, error) {
	var b LogBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("contracts: logblock decode: %w", err)
	}
	return &b, nil
}
