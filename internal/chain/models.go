// Package chain implements the append-only hash-chained log primitive shared
// by the audit trail and the verification chain.
//
// Each subject owns an independent chain. Block N links to block N-1 through
// hash(previous_hash || canonical_payload); block numbers form the exact
// sequence 1..N. Once written a block is immutable.
package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	id "attest/pkg/domain"
)

// GenesisHash is the sentinel previous-hash for the first block of a subject.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is one entry in a subject's chain. Payload holds the canonical JSON
// bytes that were hashed, so re-verification never depends on re-serializing
// a struct.
type Block struct {
	ID           id.BlockID `json:"id"`
	SubjectID    string     `json:"subject_id"`
	Number       int64      `json:"block_number"`
	PreviousHash string     `json:"previous_hash"`
	Hash         string     `json:"current_hash"`
	Payload      []byte     `json:"payload"`
	Timestamp    time.Time  `json:"timestamp"`
	Immutable    bool       `json:"immutable"`
}

// HashPayload computes the chain link: SHA-256 over the previous hash
// concatenated with the canonical payload bytes, hex encoded.
func HashPayload(previousHash string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// Canonicalize renders v as deterministic JSON: object keys sorted
// lexicographically at every depth, no insignificant whitespace, numbers kept
// exactly as encoding/json renders them. Two structurally equal payloads
// always canonicalize to identical bytes, so recomputed hashes are
// reproducible across implementations.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode payload tree: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported canonical type %T", v)
	}
	return nil
}
