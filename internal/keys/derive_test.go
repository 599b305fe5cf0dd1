package keys

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseKey = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb156652fdac1931"

func TestDerive_Deterministic(t *testing.T) {
	message := DerivationMessage(11155111)

	key1, addr1, err := Derive(testBaseKey, message)
	require.NoError(t, err)
	key2, addr2, err := Derive(testBaseKey, message)
	require.NoError(t, err)

	assert.Equal(t, key1.D, key2.D)
	assert.Equal(t, addr1, addr2)
}

func TestDerive_ContextSeparation(t *testing.T) {
	// Different chain ids must yield unrelated secondary keys.
	_, mainnetAddr, err := Derive(testBaseKey, DerivationMessage(1))
	require.NoError(t, err)
	_, sepoliaAddr, err := Derive(testBaseKey, DerivationMessage(11155111))
	require.NoError(t, err)

	assert.NotEqual(t, mainnetAddr, sepoliaAddr)
}

func TestDerive_KeySeparation(t *testing.T) {
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherHex := hex.EncodeToString(crypto.FromECDSA(otherKey))

	message := DerivationMessage(1)
	_, addr1, err := Derive(testBaseKey, message)
	require.NoError(t, err)
	_, addr2, err := Derive(otherHex, message)
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
}

func TestDerive_ScalarInRange(t *testing.T) {
	key, _, err := Derive(testBaseKey, DerivationMessage(1))
	require.NoError(t, err)

	n := crypto.S256().Params().N
	assert.Equal(t, 1, key.D.Sign())
	assert.Equal(t, -1, key.D.Cmp(n))
}

func TestDerive_InvalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "not hex", key: "zznothex"},
		{name: "too short", key: "abcd"},
		{name: "zero scalar", key: "0000000000000000000000000000000000000000000000000000000000000000"},
		{name: "odd length", key: "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb156652fdac193"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Derive(tt.key, DerivationMessage(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestParseBaseKey_AcceptsPrefix(t *testing.T) {
	key1, err := ParseBaseKey(testBaseKey)
	require.NoError(t, err)
	key2, err := ParseBaseKey("0x" + testBaseKey)
	require.NoError(t, err)
	assert.Equal(t, key1.D, key2.D)
}

func TestDerivationMessage(t *testing.T) {
	assert.Equal(t, "Paradex Stark Key Derivation: 1", DerivationMessage(1))
	assert.Equal(t, "Paradex Stark Key Derivation: 11155111", DerivationMessage(11155111))
}

func TestCredential_SecondaryCached(t *testing.T) {
	cred, err := NewCredential(testBaseKey, DerivationMessage(1))
	require.NoError(t, err)

	key1, addr1, err := cred.Secondary()
	require.NoError(t, err)
	key2, addr2, err := cred.Secondary()
	require.NoError(t, err)

	assert.Same(t, key1, key2)
	assert.Equal(t, addr1, addr2)
	assert.NotEqual(t, cred.BaseAddress(), addr1)
}

func TestNewSecondaryCredential(t *testing.T) {
	// Subkey mode: the provided key is used as-is, no derivation.
	cred, err := NewSecondaryCredential(testBaseKey)
	require.NoError(t, err)

	key, addr, err := cred.Secondary()
	require.NoError(t, err)

	parsed, err := ParseBaseKey(testBaseKey)
	require.NoError(t, err)
	assert.Equal(t, parsed.D, key.D)
	assert.Equal(t, crypto.PubkeyToAddress(parsed.PublicKey), addr)
}
