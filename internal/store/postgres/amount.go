package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// pgCheckViolation is the SQLSTATE raised when a CHECK constraint fails.
const pgCheckViolation = "23514"

// decodeAmount parses a NUMERIC(78,0) column read as text.
func decodeAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("postgres: decode amount %q: %w", s, err)
	}
	return v, nil
}

// encodeAmount renders an amount for a $n::numeric parameter.
func encodeAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func encodeAddress(a common.Address) string {
	return a.Hex()
}

// mapErr translates driver errors into domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrInvalidAmount)
	}
	return err
}

// pageClause appends LIMIT/OFFSET placeholders after the existing args.
func pageClause(opts domain.ListOpts, args []any) (string, []any) {
	var b strings.Builder
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
