package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// caller returns the --from address.
func caller() (common.Address, error) {
	if flagFrom == "" {
		return common.Address{}, errors.New("--from is required for this command")
	}
	return parseAddress(flagFrom)
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q: %w", s, domain.ErrInvalidAddress)
	}
	return common.HexToAddress(s), nil
}

// parseAmount reads a token amount in whole units ("1000", "0.25"). A "wei:"
// prefix passes base units through unchanged.
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutPrefix(s, "wei:"); ok {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", s, domain.ErrInvalidAmount)
		}
		return v, nil
	}
	v, err := domain.ParseUnits(s, domain.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

func parseStakeID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stake id %q: %w", s, err)
	}
	return id, nil
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return domain.FormatUnits(v, domain.TokenDecimals)
}

// baseUnits formats a decimal base-unit string as whole tokens.
func baseUnits(raw string) string {
	if raw == "" {
		return "-"
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return raw
	}
	return formatAmount(v)
}

// readBatchCSV parses "address,amount" rows. Blank lines, lines starting
// with '#' and a leading "address,amount" header are skipped.
func readBatchCSV(r io.Reader) ([]common.Address, []*uint256.Int, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var (
		users   []common.Address
		amounts []*uint256.Int
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("batch csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "address") {
			continue
		}
		user, err := parseAddress(rec[0])
		if err != nil {
			return nil, nil, fmt.Errorf("batch csv line %d: %w", line, err)
		}
		amount, err := parseAmount(rec[1])
		if err != nil {
			return nil, nil, fmt.Errorf("batch csv line %d: %w", line, err)
		}
		users = append(users, user)
		amounts = append(amounts, amount)
	}
	if len(users) == 0 {
		return nil, nil, errors.New("batch csv: no rows")
	}
	return users, amounts, nil
}
