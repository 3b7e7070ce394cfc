package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	balance         uint64
	balanceErr      error
	signatures      []*rpc.TransactionSignature
	signaturesErr   error
	transactions    map[string]*rpc.GetTransactionResult
	transactionErrs map[string]error
	blockhash       solana.Hash
	blockhashErr    error
	sentSignature   solana.Signature
	sendErr         error
	sentEncoded     []string
	statuses        []*rpc.SignatureStatusesResult
	statusesErr     error
}

func (m *mockRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return &rpc.GetBalanceResult{Value: m.balance}, nil
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	if m.signaturesErr != nil {
		return nil, m.signaturesErr
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	if err, ok := m.transactionErrs[signature.String()]; ok {
		return nil, err
	}
	if m.transactions == nil {
		return nil, nil
	}
	return m.transactions[signature.String()], nil
}

func (m *mockRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash},
	}, nil
}

func (m *mockRPCClient) SendEncodedTransaction(
	ctx context.Context,
	encodedTx string,
) (solana.Signature, error) {
	m.sentEncoded = append(m.sentEncoded, encodedTx)
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	return m.sentSignature, nil
}

func (m *mockRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	if m.statusesErr != nil {
		return nil, m.statusesErr
	}
	return &rpc.GetSignatureStatusesResult{Value: m.statuses}, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "devnet", nil, logger)
}

const testAddress = "7EYnhQoR9YM3N7UoaKRoA44Uy8JeaZV3qyouov87awMs"

// testSig builds a deterministic distinct signature for tests.
func testSig(n byte) solana.Signature {
	var sig solana.Signature
	for i := range sig {
		sig[i] = n
	}
	return sig
}

var testSignatures = []solana.Signature{
	testSig(1), testSig(2), testSig(3), testSig(4), testSig(5),
}

func TestBalance(t *testing.T) {
	mock := &mockRPCClient{balance: 2_000_000_000}
	client := newTestClient(mock)

	lamports, err := client.Balance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), lamports)
}

func TestBalance_InvalidAddress(t *testing.T) {
	client := newTestClient(&mockRPCClient{})

	_, err := client.Balance(context.Background(), "not-an-address")
	require.Error(t, err)
}

func TestRecentActivity_FullBatch(t *testing.T) {
	ctx := context.Background()

	// Setup: 5 signatures; detail succeeds for all of them
	now := solana.UnixTimeSeconds(time.Now().Unix())
	sigs := make([]*rpc.TransactionSignature, len(testSignatures))
	txns := make(map[string]*rpc.GetTransactionResult, len(testSignatures))
	for i, sig := range testSignatures {
		sigs[i] = &rpc.TransactionSignature{Signature: sig, Slot: uint64(100 - i), BlockTime: &now}
		txns[sig.String()] = &rpc.GetTransactionResult{
			Meta: &rpc.TransactionMeta{
				Fee:          5000,
				PreBalances:  []uint64{3_000_000_000},
				PostBalances: []uint64{1_000_000_000},
			},
		}
	}

	client := newTestClient(&mockRPCClient{signatures: sigs, transactions: txns})

	// Act
	entries, err := client.RecentActivity(ctx, testAddress, 5)

	// Assert
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, entry := range entries {
		assert.Equal(t, testSignatures[i].String(), entry.Signature)
		assert.Equal(t, OutcomeSuccess, entry.Outcome)
		assert.Equal(t, int64(-2_000_000_000), entry.NetLamports)
		assert.Equal(t, uint64(5000), entry.FeeLamports)
		require.NotNil(t, entry.BlockTime)
	}
}

func TestRecentActivity_PerItemFailureDegradesToUnknown(t *testing.T) {
	ctx := context.Background()

	// Setup: 5 signatures; the detail fetch for the third one throws
	now := solana.UnixTimeSeconds(time.Now().Unix())
	sigs := make([]*rpc.TransactionSignature, len(testSignatures))
	txns := make(map[string]*rpc.GetTransactionResult, len(testSignatures))
	for i, sig := range testSignatures {
		sigs[i] = &rpc.TransactionSignature{Signature: sig, Slot: uint64(100 - i), BlockTime: &now}
		txns[sig.String()] = &rpc.GetTransactionResult{
			Meta: &rpc.TransactionMeta{
				Fee:          5000,
				PreBalances:  []uint64{2_000_000_000},
				PostBalances: []uint64{2_500_000_000},
			},
		}
	}
	failing := testSignatures[2].String()
	mock := &mockRPCClient{
		signatures:      sigs,
		transactions:    txns,
		transactionErrs: map[string]error{failing: errors.New("node is behind")},
	}

	client := newTestClient(mock)

	// Act
	entries, err := client.RecentActivity(ctx, testAddress, 5)

	// Assert: the batch is intact, the failing entry is degraded
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, OutcomeUnknown, entries[2].Outcome)
	assert.Zero(t, entries[2].NetLamports)
	assert.Zero(t, entries[2].FeeLamports)

	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, OutcomeSuccess, entries[i].Outcome)
		assert.Equal(t, int64(500_000_000), entries[i].NetLamports)
		assert.Equal(t, uint64(5000), entries[i].FeeLamports)
	}
}

func TestRecentActivity_FailedTransactionOutcome(t *testing.T) {
	ctx := context.Background()

	now := solana.UnixTimeSeconds(time.Now().Unix())
	sig := testSignatures[0]
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sig, Slot: 100, BlockTime: &now, Err: map[string]interface{}{"InstructionError": []interface{}{}}},
		},
		transactions: map[string]*rpc.GetTransactionResult{
			sig.String(): {
				Meta: &rpc.TransactionMeta{
					Fee:          5000,
					PreBalances:  []uint64{1_000_000_000},
					PostBalances: []uint64{999_995_000},
				},
			},
		},
	}

	entries, err := newTestClient(mock).RecentActivity(ctx, testAddress, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, OutcomeFailed, entries[0].Outcome)
}

func TestRecentActivity_MissingBlockTime(t *testing.T) {
	ctx := context.Background()

	sig := testSignatures[0]
	mock := &mockRPCClient{
		signatures:      []*rpc.TransactionSignature{{Signature: sig, Slot: 100}},
		transactionErrs: map[string]error{sig.String(): errors.New("unavailable")},
	}

	entries, err := newTestClient(mock).RecentActivity(ctx, testAddress, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].BlockTime)
}

func TestRecentActivity_SignatureListFailure(t *testing.T) {
	mock := &mockRPCClient{signaturesErr: errors.New("rpc unavailable")}

	_, err := newTestClient(mock).RecentActivity(context.Background(), testAddress, 5)
	require.Error(t, err)
}

func TestSubmitTransaction(t *testing.T) {
	want := testSignatures[0]
	mock := &mockRPCClient{sentSignature: want}
	client := newTestClient(mock)

	sig, err := client.SubmitTransaction(context.Background(), []byte("signed-bytes"))
	require.NoError(t, err)
	assert.Equal(t, want, sig)
	require.Len(t, mock.sentEncoded, 1)
	assert.NotEmpty(t, mock.sentEncoded[0])
}

func TestConfirm_Confirmed(t *testing.T) {
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
	}

	err := newTestClient(mock).Confirm(context.Background(), testSignatures[0])
	require.NoError(t, err)
}

func TestConfirm_FailedOnChain(t *testing.T) {
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
				Err:                map[string]interface{}{"InstructionError": []interface{}{}},
			},
		},
	}

	err := newTestClient(mock).Confirm(context.Background(), testSignatures[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed on chain")
}
