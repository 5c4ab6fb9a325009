package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	domainName    = "StakeVest"
	domainVersion = "1"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	snapshotTypeHash = ethcrypto.Keccak256(
		[]byte("SnapshotAttestation(uint256 oracleTime,uint256 stakeCount,bytes32 stakesHash,uint256 totalStaked)"),
	)
)

// SnapshotAttestation is the EIP-712 struct signed over a ledger snapshot.
type SnapshotAttestation struct {
	OracleTime  uint64
	StakeCount  uint64
	StakesHash  common.Hash // keccak256 of stakes.jsonl
	TotalStaked *uint256.Int
}

// Signer holds the operator key. Its address is the caller identity used for
// ledger operations.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		domainSep:  domainSeparator(chainID),
	}, nil
}

// Address returns the address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignSnapshot returns the hex-encoded 65-byte signature over att.
func (s *Signer) SignSnapshot(att SnapshotAttestation) (string, error) {
	digest := eip712Hash(s.domainSep, snapshotStructHash(att))
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; EIP-712 consumers expect {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSnapshotSigner returns the address that produced sigHex over att on
// chainID.
func RecoverSnapshotSigner(att SnapshotAttestation, sigHex string, chainID int64) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature is %d bytes, want 65", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, errors.New("crypto/signer: invalid recovery id")
	}

	digest := eip712Hash(domainSeparator(chainID), snapshotStructHash(att))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// HashStakes returns keccak256(data).
func HashStakes(data []byte) common.Hash {
	return ethcrypto.Keccak256Hash(data)
}

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func domainSeparator(chainID int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(domainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			bigIntTo32Bytes(big.NewInt(chainID)),
		),
	)
}

func snapshotStructHash(att SnapshotAttestation) []byte {
	total := att.TotalStaked
	if total == nil {
		total = new(uint256.Int)
	}
	totalBytes := total.Bytes32()
	return ethcrypto.Keccak256(
		concatBytes(
			snapshotTypeHash,
			bigIntTo32Bytes(new(big.Int).SetUint64(att.OracleTime)),
			bigIntTo32Bytes(new(big.Int).SetUint64(att.StakeCount)),
			att.StakesHash.Bytes(),
			totalBytes[:],
		),
	)
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
