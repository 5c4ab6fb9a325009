package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test key; its address is fixed.
const (
	testKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(testKey, "")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestLoadKeySources(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.ErrorIs(t, err, ErrNoKey)
	assert.False(t, KeyConfig{}.Configured())

	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	k, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)
}

func TestSignerAddress(t *testing.T) {
	s, err := LoadSigner(KeyConfig{RawPrivateKey: testKey}, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = NewSigner("zz", 1)
	assert.Error(t, err)
}

func TestSnapshotAttestationRecovers(t *testing.T) {
	s, err := NewSigner(testKey, 31337)
	require.NoError(t, err)

	att := SnapshotAttestation{
		OracleTime:  1_700_000_000,
		StakeCount:  2,
		StakesHash:  HashStakes([]byte("{}\n{}\n")),
		TotalStaked: uint256.NewInt(1010),
	}
	sig, err := s.SignSnapshot(att)
	require.NoError(t, err)

	who, err := RecoverSnapshotSigner(att, sig, 31337)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), who)

	other, err := RecoverSnapshotSigner(att, sig, 1)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other, "chain id is part of the domain")

	att.StakeCount = 3
	tampered, err := RecoverSnapshotSigner(att, sig, 31337)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), tampered)

	_, err = RecoverSnapshotSigner(att, "0x1234", 31337)
	assert.Error(t, err)
}
