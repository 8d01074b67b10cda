package claim

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPubkey() [32]byte {
	var pk [32]byte
	for i := range pk {
		pk[i] = byte(i + 1)
	}
	return pk
}

func validRequest(t *testing.T) ProveRequest {
	t.Helper()
	addr, err := EncodeSS58(42, testPubkey())
	require.NoError(t, err)
	return ProveRequest{
		SSAddress:  addr,
		Signature:  "0x" + strings.Repeat("ab", 64),
		EVMAddress: "0x" + strings.Repeat("11", 20),
		Challenge:  "0x" + strings.Repeat("cd", 32),
		Amount:     "1000000000000000000",
	}
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	req := validRequest(t)

	v, err := Validate(req)
	require.NoError(t, err)

	assert.Equal(t, testPubkey(), v.PublicKey)
	assert.Equal(t, byte(0xab), v.Signature[63])
	assert.Equal(t, byte(0xcd), v.Challenge[0])
	assert.Equal(t, "1000000000000000000", v.AmountInt().Dec())
	assert.Equal(t, "0x0de0b6b3a7640000", "0x"+hex.EncodeToString(v.Amount[24:]))
	assert.Equal(t, "0x"+strings.Repeat("11", 20), strings.ToLower(v.Recipient.Hex()))
}

func TestValidateRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ProveRequest)
		field  string
	}{
		{"empty address", func(r *ProveRequest) { r.SSAddress = "" }, "ssAddress"},
		{"whitespace signature", func(r *ProveRequest) { r.Signature = "   " }, "signature"},
		{"empty amount", func(r *ProveRequest) { r.Amount = "" }, "amount"},
		{"negative amount", func(r *ProveRequest) { r.Amount = "-1" }, "amount"},
		{"decimal point amount", func(r *ProveRequest) { r.Amount = "1.5" }, "amount"},
		{"hex amount", func(r *ProveRequest) { r.Amount = "0x10" }, "amount"},
		{"bad ss58", func(r *ProveRequest) { r.SSAddress = "not-an-address" }, "ssAddress"},
		{"short signature", func(r *ProveRequest) { r.Signature = "0x" + strings.Repeat("ab", 63) }, "signature"},
		{"non-hex signature", func(r *ProveRequest) { r.Signature = "0x" + strings.Repeat("zz", 64) }, "signature"},
		{"short recipient", func(r *ProveRequest) { r.EVMAddress = "0x" + strings.Repeat("11", 19) }, "evmAddress"},
		{"long challenge", func(r *ProveRequest) { r.Challenge = "0x" + strings.Repeat("cd", 33) }, "challenge"},
		{"amount overflow", func(r *ProveRequest) { r.Amount = "1" + strings.Repeat("0", 78) }, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(t)
			tt.mutate(&req)

			_, err := Validate(req)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateChecksEmptinessBeforeDecoding(t *testing.T) {
	req := validRequest(t)
	req.SSAddress = "garbage"
	req.Challenge = ""

	_, err := Validate(req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "challenge", verr.Field)
}

func TestValidateAcceptsUnprefixedHex(t *testing.T) {
	req := validRequest(t)
	req.Signature = strings.TrimPrefix(req.Signature, "0x")
	req.Challenge = strings.TrimPrefix(req.Challenge, "0x")

	_, err := Validate(req)
	assert.NoError(t, err)
}

func TestFingerprintIgnoresSignature(t *testing.T) {
	a := validRequest(t)
	b := validRequest(t)
	b.Signature = "0x" + strings.Repeat("ef", 64)
	b.Challenge = strings.ToUpper(strings.TrimPrefix(b.Challenge, "0x"))

	va, err := Validate(a)
	require.NoError(t, err)
	vb, err := Validate(b)
	require.NoError(t, err)

	assert.Equal(t, Fingerprint(va), Fingerprint(vb))

	c := validRequest(t)
	c.Amount = "1000000000000000001"
	vc, err := Validate(c)
	require.NoError(t, err)
	assert.NotEqual(t, Fingerprint(va), Fingerprint(vc))
}
