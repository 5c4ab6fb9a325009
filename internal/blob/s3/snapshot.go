package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/crypto"
	"github.com/alanyoungcy/stakevest/internal/domain"
)

const (
	snapshotRoot     = "snapshots"
	stakesObject     = "stakes.jsonl"
	manifestObject   = "config.json"
	multipartTrigger = minPartSize
)

// LedgerSource supplies a consistent export of the ledger.
type LedgerSource interface {
	Export(ctx context.Context) (domain.LedgerExport, error)
}

// BlobStore is the object storage surface the snapshotter needs.
type BlobStore interface {
	domain.BlobWriter
	domain.BlobReader
	domain.BlobDeleter
}

// ErrBadAttestation is returned by Verify when a snapshot's hash or signature
// does not match its contents.
var ErrBadAttestation = errors.New("s3blob: snapshot attestation mismatch")

// Snapshotter implements domain.Snapshotter by writing the ledger as JSONL
// under snapshots/<oracle time>/ and recording each run in the audit log.
// With a signer attached, every manifest carries an EIP-712 attestation.
type Snapshotter struct {
	source  LedgerSource
	blobs   BlobStore
	audit   domain.AuditStore
	logger  *slog.Logger
	signer  *crypto.Signer
	chainID int64
}

// NewSnapshotter creates a Snapshotter. audit may be nil.
func NewSnapshotter(source LedgerSource, blobs BlobStore, audit domain.AuditStore, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		source: source,
		blobs:  blobs,
		audit:  audit,
		logger: logger.With(slog.String("component", "snapshotter")),
	}
}

type stakeLine struct {
	ID                   uint64 `json:"id"`
	Owner                string `json:"owner"`
	Principal            string `json:"principal"`
	TotalReward          string `json:"total_reward"`
	StartTime            uint64 `json:"start_time"`
	ClaimedAmount        string `json:"claimed_amount"`
	LockDuration         uint64 `json:"lock_duration"`
	LinearDuration       uint64 `json:"linear_duration"`
	InitialUnlockRateBps uint64 `json:"initial_unlock_rate_bps"`
	Origin               string `json:"origin"`
	Closed               bool   `json:"closed"`
	ClosedAt             uint64 `json:"closed_at,omitempty"`
}

type manifest struct {
	OracleTime  uint64    `json:"oracle_time"`
	TakenAt     time.Time `json:"taken_at"`
	Stakes      int       `json:"stakes"`
	TotalStaked string    `json:"total_staked"`
	PoolBalance string    `json:"pool_balance"`
	StakesHash  string    `json:"stakes_hash"`
	ChainID     int64     `json:"chain_id,omitempty"`
	Signer      string    `json:"signer,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	Config      struct {
		BonusRateBps         uint64    `json:"bonus_rate_bps"`
		LockDuration         uint64    `json:"lock_duration"`
		LinearDuration       uint64    `json:"linear_duration"`
		InitialUnlockRateBps uint64    `json:"initial_unlock_rate_bps"`
		WithdrawFeeRateBps   uint64    `json:"withdraw_fee_rate_bps"`
		Administrator        string    `json:"administrator"`
		UpdatedAt            time.Time `json:"updated_at"`
	} `json:"config"`
}

// WithSigner makes Snapshot sign each manifest for chainID.
func (s *Snapshotter) WithSigner(signer *crypto.Signer, chainID int64) *Snapshotter {
	s.signer = signer
	s.chainID = chainID
	return s
}

// Snapshot exports the ledger and uploads stakes.jsonl followed by
// config.json. The manifest goes last so a listed snapshot is complete.
func (s *Snapshotter) Snapshot(ctx context.Context) (domain.SnapshotInfo, error) {
	exp, err := s.source.Export(ctx)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot export: %w", err)
	}

	lines := make([]stakeLine, 0, len(exp.Stakes))
	for _, st := range exp.Stakes {
		lines = append(lines, stakeLine{
			ID:                   st.ID,
			Owner:                st.Owner.Hex(),
			Principal:            st.Principal.Dec(),
			TotalReward:          st.TotalReward.Dec(),
			StartTime:            st.StartTime,
			ClaimedAmount:        st.ClaimedAmount.Dec(),
			LockDuration:         st.LockDuration,
			LinearDuration:       st.LinearDuration,
			InitialUnlockRateBps: st.InitialUnlockRateBps,
			Origin:               string(st.Origin),
			Closed:               st.Closed,
			ClosedAt:             st.ClosedAt,
		})
	}
	buf, err := marshalJSONL(lines)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot marshal: %w", err)
	}

	prefix := snapshotPrefix(exp.OracleTime)
	stakesPath := path.Join(prefix, stakesObject)
	if int64(len(buf)) >= multipartTrigger {
		err = s.blobs.PutMultipart(ctx, stakesPath, bytes.NewReader(buf), minPartSize)
	} else {
		err = s.blobs.Put(ctx, stakesPath, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot upload stakes: %w", err)
	}

	m := manifest{
		OracleTime:  exp.OracleTime,
		TakenAt:     time.Now().UTC(),
		Stakes:      len(lines),
		TotalStaked: exp.TotalStaked.Dec(),
		PoolBalance: exp.PoolBalance.Dec(),
		StakesHash:  crypto.HashStakes(buf).Hex(),
	}
	if s.signer != nil {
		sig, err := s.signer.SignSnapshot(m.attestation(exp.TotalStaked))
		if err != nil {
			return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot sign: %w", err)
		}
		m.ChainID = s.chainID
		m.Signer = s.signer.Address().Hex()
		m.Signature = sig
	}
	m.Config.BonusRateBps = exp.Config.BonusRateBps
	m.Config.LockDuration = exp.Config.LockDuration
	m.Config.LinearDuration = exp.Config.LinearDuration
	m.Config.InitialUnlockRateBps = exp.Config.InitialUnlockRateBps
	m.Config.WithdrawFeeRateBps = exp.Config.WithdrawFeeRateBps
	m.Config.Administrator = exp.Config.Administrator.Hex()
	m.Config.UpdatedAt = exp.Config.UpdatedAt

	mbuf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot marshal manifest: %w", err)
	}
	if err := s.blobs.Put(ctx, path.Join(prefix, manifestObject), bytes.NewReader(mbuf), "application/json"); err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot upload manifest: %w", err)
	}

	info := domain.SnapshotInfo{Prefix: prefix, Stakes: m.Stakes, TakenAt: m.TakenAt, OracleTime: m.OracleTime}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "snapshot.created", map[string]any{
			"prefix":       prefix,
			"stakes":       m.Stakes,
			"oracle_time":  m.OracleTime,
			"total_staked": m.TotalStaked,
		}); err != nil {
			return info, fmt.Errorf("s3blob: snapshot audit log: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "snapshotter: snapshot written",
		slog.String("prefix", prefix),
		slog.Int("stakes", m.Stakes),
		slog.Uint64("oracle_time", m.OracleTime),
	)
	return info, nil
}

// List returns every complete snapshot, newest first.
func (s *Snapshotter) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	objects, err := s.blobs.List(ctx, snapshotRoot+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list snapshots: %w", err)
	}

	var out []domain.SnapshotInfo
	for _, obj := range objects {
		if path.Base(obj.Path) != manifestObject {
			continue
		}
		m, err := s.readManifest(ctx, obj.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SnapshotInfo{
			Prefix:     path.Dir(obj.Path),
			Stakes:     m.Stakes,
			TakenAt:    m.TakenAt,
			OracleTime: m.OracleTime,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OracleTime > out[j].OracleTime
	})
	return out, nil
}

// Prune removes every object of all but the newest keep snapshots.
func (s *Snapshotter) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	snaps, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(snaps) <= keep {
		return 0, nil
	}

	removed := 0
	for _, snap := range snaps[keep:] {
		objects, err := s.blobs.List(ctx, snap.Prefix+"/")
		if err != nil {
			return removed, fmt.Errorf("s3blob: prune list %s: %w", snap.Prefix, err)
		}
		// Manifest first so an interrupted prune never leaves a listed but
		// incomplete snapshot.
		paths := []string{path.Join(snap.Prefix, manifestObject)}
		for _, obj := range objects {
			if path.Base(obj.Path) != manifestObject {
				paths = append(paths, obj.Path)
			}
		}
		for _, p := range paths {
			if err := s.blobs.Delete(ctx, p); err != nil {
				return removed, fmt.Errorf("s3blob: prune delete %s: %w", p, err)
			}
		}
		removed++
		s.logger.InfoContext(ctx, "snapshotter: snapshot pruned", slog.String("prefix", snap.Prefix))
	}
	return removed, nil
}

// Verify re-hashes the stakes file of the snapshot at prefix and checks the
// manifest signature. It returns the signing address.
func (s *Snapshotter) Verify(ctx context.Context, prefix string) (common.Address, error) {
	m, err := s.readManifest(ctx, path.Join(prefix, manifestObject))
	if err != nil {
		return common.Address{}, err
	}
	if m.Signature == "" {
		return common.Address{}, fmt.Errorf("%w: %s is unsigned", ErrBadAttestation, prefix)
	}

	rc, err := s.blobs.Get(ctx, path.Join(prefix, stakesObject))
	if err != nil {
		return common.Address{}, fmt.Errorf("s3blob: verify read stakes: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return common.Address{}, fmt.Errorf("s3blob: verify read stakes: %w", err)
	}
	if crypto.HashStakes(data).Hex() != m.StakesHash {
		return common.Address{}, fmt.Errorf("%w: stakes hash differs", ErrBadAttestation)
	}

	total, err := uint256.FromDecimal(m.TotalStaked)
	if err != nil {
		return common.Address{}, fmt.Errorf("s3blob: verify total staked: %w", err)
	}
	who, err := crypto.RecoverSnapshotSigner(m.attestation(total), m.Signature, m.ChainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("s3blob: verify: %w", err)
	}
	if m.Signer != "" && common.HexToAddress(m.Signer) != who {
		return common.Address{}, fmt.Errorf("%w: signed by %s, manifest names %s", ErrBadAttestation, who.Hex(), m.Signer)
	}
	return who, nil
}

func (m manifest) attestation(total *uint256.Int) crypto.SnapshotAttestation {
	return crypto.SnapshotAttestation{
		OracleTime:  m.OracleTime,
		StakeCount:  uint64(m.Stakes),
		StakesHash:  common.HexToHash(m.StakesHash),
		TotalStaked: total,
	}
}

func (s *Snapshotter) readManifest(ctx context.Context, p string) (manifest, error) {
	rc, err := s.blobs.Get(ctx, p)
	if err != nil {
		return manifest{}, fmt.Errorf("s3blob: read manifest %s: %w", p, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return manifest{}, fmt.Errorf("s3blob: read manifest %s: %w", p, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("s3blob: decode manifest %s: %w", p, err)
	}
	return m, nil
}

// snapshotPrefix is zero-padded so lexical and numeric order agree.
func snapshotPrefix(oracleTime uint64) string {
	ts := strconv.FormatUint(oracleTime, 10)
	return snapshotRoot + "/" + strings.Repeat("0", max(0, 12-len(ts))) + ts
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Snapshotter = (*Snapshotter)(nil)
