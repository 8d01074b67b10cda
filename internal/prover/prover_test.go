package prover

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"prover-api/internal/claim"
	"prover-api/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() claim.ValidatedRequest {
	var req claim.ValidatedRequest
	for i := range req.PublicKey {
		req.PublicKey[i] = byte(i + 1)
	}
	for i := range req.Challenge {
		req.Challenge[i] = 0xcd
	}
	req.Amount = uint256.NewInt(1_000_000_000_000_000_000).Bytes32()
	req.Recipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	return req
}

func TestPublicValuesRoundTrip(t *testing.T) {
	req := testRequest()

	data, err := EncodePublicValues(req)
	require.NoError(t, err)
	assert.Len(t, data, 4*32)

	pv, err := DecodePublicValues(data)
	require.NoError(t, err)
	assert.Equal(t, req.PublicKey, pv.PublicKey)
	assert.Equal(t, req.Recipient, pv.Recipient)
	assert.Equal(t, req.Challenge, pv.Challenge)
	assert.Equal(t, "1000000000000000000", pv.Amount.String())
}

func TestDecodePublicValuesRejectsShortInput(t *testing.T) {
	_, err := DecodePublicValues(make([]byte, 40))
	assert.Error(t, err)
}

func TestMockProverIsDeterministic(t *testing.T) {
	vkey := common.HexToHash("0x01")
	p := NewMock(vkey, 0)

	a, err := p.Prove(context.Background(), testRequest())
	require.NoError(t, err)
	b, err := p.Prove(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, crypto.Keccak256(vkey.Bytes(), a.PublicValues), a.Proof)
}

func TestMockProverDelayHonoursContext(t *testing.T) {
	p := NewMock(common.Hash{}, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Prove(ctx, testRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecProverParsesOutput(t *testing.T) {
	requireShell(t)

	p := NewExec("sh", []string{"-c", `cat >/dev/null; echo '{"proof":"0xdead","publicValues":"beef"}'`}, common.Hash{})
	res, err := p.Prove(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, res.Proof)
	assert.Equal(t, []byte{0xbe, 0xef}, res.PublicValues)
}

func TestExecProverReceivesRequest(t *testing.T) {
	requireShell(t)

	// Fails unless the recipient reaches the process on stdin.
	script := `grep -q 0x1111111111111111111111111111111111111111 && echo '{"proof":"0x01","publicValues":"0x02"}'`
	p := NewExec("sh", []string{"-c", script}, common.Hash{})
	_, err := p.Prove(context.Background(), testRequest())
	assert.NoError(t, err)
}

func TestExecProverReportsFailure(t *testing.T) {
	requireShell(t)

	p := NewExec("sh", []string{"-c", `cat >/dev/null; echo boom >&2; exit 3`}, common.Hash{})
	_, err := p.Prove(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestExecProverRejectsGarbage(t *testing.T) {
	requireShell(t)

	p := NewExec("sh", []string{"-c", `cat >/dev/null; echo not-json`}, common.Hash{})
	_, err := p.Prove(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestNewSelectsMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	p, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MockProver{}, p)

	cfg.Prover.Mode = config.ProverModeExec
	cfg.Prover.Command = "/usr/local/bin/claim-prover"
	p, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ExecProver{}, p)

	cfg.Prover.Mode = "gpu"
	_, err = New(cfg)
	assert.Error(t, err)
}
