package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevest/internal/crypto"
	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/store/memory"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, p string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	return m.Put(ctx, p, data, "")
}

func (m *memBlobs) Get(_ context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[p]
	return ok, nil
}

func (m *memBlobs) Delete(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, p)
	return nil
}

type fakeSource struct {
	exp domain.LedgerExport
	err error
}

func (f *fakeSource) Export(context.Context) (domain.LedgerExport, error) {
	return f.exp, f.err
}

func sampleExport(oracle uint64) domain.LedgerExport {
	owner := common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	return domain.LedgerExport{
		Config: domain.PoolConfig{BonusRateBps: 5000, InitialUnlockRateBps: 1000, Administrator: owner},
		Stakes: []domain.Stake{
			{ID: 8888, Owner: owner, Principal: uint256.NewInt(1000), TotalReward: uint256.NewInt(1500), ClaimedAmount: uint256.NewInt(150), Origin: domain.OriginUser},
			{ID: 8889, Owner: owner, Principal: uint256.NewInt(10), TotalReward: uint256.NewInt(15), ClaimedAmount: new(uint256.Int), Origin: domain.OriginAdmin, Closed: true, ClosedAt: 7},
		},
		TotalStaked: uint256.NewInt(1000),
		PoolBalance: uint256.NewInt(850),
		OracleTime:  oracle,
	}
}

func TestSnapshotWritesStakesAndManifest(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	audit := memory.NewAuditStore()
	snap := NewSnapshotter(&fakeSource{exp: sampleExport(1_700_000_000)}, blobs, audit, nil)

	info, err := snap.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/001700000000", info.Prefix)
	assert.Equal(t, 2, info.Stakes)

	lines := strings.Split(strings.TrimSpace(string(blobs.objects["snapshots/001700000000/stakes.jsonl"])), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":8888`)
	assert.Contains(t, lines[0], `"claimed_amount":"150"`)
	assert.Contains(t, lines[1], `"closed":true`)

	manifest := string(blobs.objects["snapshots/001700000000/config.json"])
	assert.Contains(t, manifest, `"total_staked": "1000"`)
	assert.Contains(t, manifest, `"bonus_rate_bps": 5000`)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.created", entries[0].Event)
}

func TestSnapshotExportFailure(t *testing.T) {
	boom := errors.New("boom")
	snap := NewSnapshotter(&fakeSource{err: boom}, newMemBlobs(), nil, nil)
	_, err := snap.Snapshot(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	src := &fakeSource{}
	snap := NewSnapshotter(src, blobs, nil, nil)

	for _, ts := range []uint64{100, 300, 200} {
		src.exp = sampleExport(ts)
		_, err := snap.Snapshot(ctx)
		require.NoError(t, err)
	}
	// A stakes file without a manifest is not a complete snapshot.
	blobs.objects["snapshots/000000000400/stakes.jsonl"] = []byte("{}\n")

	list, err := snap.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint64{300, 200, 100}, []uint64{list[0].OracleTime, list[1].OracleTime, list[2].OracleTime})

	removed, err := snap.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err = snap.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(300), list[0].OracleTime)
	_, ok := blobs.objects["snapshots/000000000100/stakes.jsonl"]
	assert.False(t, ok)
}

func TestJoinKeyAndEndpoint(t *testing.T) {
	assert.Equal(t, "snapshots/1/config.json", joinKey("", "/snapshots/1/config.json"))
	assert.Equal(t, "stakevest/main/snapshots", joinKey("stakevest/main", "snapshots"))

	c := &Client{prefix: "stakevest"}
	assert.Equal(t, "snapshots/1", c.logicalPath("stakevest/snapshots/1"))

	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}

func TestSignedSnapshotVerifies(t *testing.T) {
	ctx := context.Background()
	signer, err := crypto.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", 31337)
	require.NoError(t, err)

	blobs := newMemBlobs()
	snap := NewSnapshotter(&fakeSource{exp: sampleExport(500)}, blobs, nil, nil).WithSigner(signer, 31337)
	info, err := snap.Snapshot(ctx)
	require.NoError(t, err)

	who, err := snap.Verify(ctx, info.Prefix)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), who)

	blobs.objects[info.Prefix+"/stakes.jsonl"] = append(blobs.objects[info.Prefix+"/stakes.jsonl"], '\n')
	_, err = snap.Verify(ctx, info.Prefix)
	assert.ErrorIs(t, err, ErrBadAttestation)
}

func TestUnsignedSnapshotFailsVerify(t *testing.T) {
	ctx := context.Background()
	snap := NewSnapshotter(&fakeSource{exp: sampleExport(500)}, newMemBlobs(), nil, nil)
	info, err := snap.Snapshot(ctx)
	require.NoError(t, err)
	_, err = snap.Verify(ctx, info.Prefix)
	assert.ErrorIs(t, err, ErrBadAttestation)
}
