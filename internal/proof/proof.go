// Package proof builds and checks self-verifying draw proofs.
//
// A proof is the draw's inputs and outputs plus a SHA-256 digest over their
// RFC 8785 canonical JSON form. The bundle travels base64 encoded, so anyone
// holding it can decode the fields, canonicalize them again and compare the
// digest without access to the operator's database.
package proof

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

const (
	// Algorithm identifies the winner selection rule, floor(seed * pool size).
	Algorithm = "CSPRNG_UNIFORM_FLOOR_V1"
	// ComplianceStandard tags the regulatory profile the proof is produced for.
	ComplianceStandard = "UKGC-RTS-14"
	// WitnessPrefix marks witness tokens so they cannot be confused with proofs.
	WitnessPrefix = "WITNESS_"
)

var ErrMalformedProof = errors.New("malformed draw proof")

// DrawMetadata are the inputs a draw is bound to.
type DrawMetadata struct {
	RaffleID          string    `json:"raffleId"`
	TotalTickets      int       `json:"totalTickets"`
	TotalParticipants int       `json:"totalParticipants"`
	Timestamp         time.Time `json:"timestamp"`
	RandomSeed        string    `json:"randomSeed"`
	SeedHash          string    `json:"seedHash,omitempty"`
	BlockchainHash    string    `json:"blockchainHash,omitempty"`
}

// Proof is the plaintext half of a bundle.
type Proof struct {
	DrawMetadata       DrawMetadata `json:"drawMetadata"`
	WinningTicket      int          `json:"winningTicket"`
	WinnerUserID       string       `json:"winnerUserId"`
	Algorithm          string       `json:"algorithm"`
	ComplianceStandard string       `json:"complianceStandard"`
}

// Bundle pairs a proof with the digest computed over it.
type Bundle struct {
	Proof Proof  `json:"proof"`
	Hash  string `json:"hash"`
}

// Witness is the data a witness signature attests to.
type Witness struct {
	DrawMetadata DrawMetadata `json:"drawMetadata"`
	WitnessEmail string       `json:"witnessEmail"`
	SignedAt     time.Time    `json:"signedAt"`
}

func (w Witness) normalized() Witness {
	w.DrawMetadata.Timestamp = w.DrawMetadata.Timestamp.UTC()
	w.SignedAt = w.SignedAt.UTC()
	return w
}

// Generator produces proofs and witness signatures.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateProof binds the metadata to the winning ticket and returns the
// encoded bundle.
func (g *Generator) GenerateProof(meta DrawMetadata, winningTicket int, winnerUserID string) (string, error) {
	meta.Timestamp = meta.Timestamp.UTC()
	p := Proof{
		DrawMetadata:       meta,
		WinningTicket:      winningTicket,
		WinnerUserID:       winnerUserID,
		Algorithm:          Algorithm,
		ComplianceStandard: ComplianceStandard,
	}
	digest, err := Digest(p)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(Bundle{Proof: p, Hash: digest})
	if err != nil {
		return "", fmt.Errorf("encode proof bundle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// GenerateWitnessSignature returns a prefixed token attesting that the named
// witness observed the draw described by w.
func (g *Generator) GenerateWitnessSignature(w Witness) (string, error) {
	w = w.normalized()
	digest, err := Digest(w)
	if err != nil {
		return "", err
	}
	return WitnessPrefix + digest, nil
}

// VerifyWitnessSignature recomputes the token for w.
func VerifyWitnessSignature(w Witness, token string) (bool, error) {
	if !strings.HasPrefix(token, WitnessPrefix) {
		return false, nil
	}
	digest, err := Digest(w.normalized())
	if err != nil {
		return false, err
	}
	return equalHex(digest, strings.TrimPrefix(token, WitnessPrefix)), nil
}

// Decode parses an encoded bundle without checking it.
func Decode(blob string) (*Bundle, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if b.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrMalformedProof)
	}
	return &b, nil
}

// Verify reports whether the bundle's embedded hash matches its fields.
func (b *Bundle) Verify() (bool, error) {
	digest, err := Digest(b.Proof)
	if err != nil {
		return false, err
	}
	return equalHex(digest, b.Hash), nil
}

// VerifyBlob decodes and verifies an encoded bundle in one step.
func VerifyBlob(blob string) (*Bundle, bool, error) {
	b, err := Decode(blob)
	if err != nil {
		return nil, false, err
	}
	ok, err := b.Verify()
	return b, ok, err
}

// Digest is the lowercase hex SHA-256 of v's canonical JSON form.
func Digest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for digest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize for digest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashSeed is the commitment hash of a seed string.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func equalHex(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(strings.ToLower(b))) == 1
}
