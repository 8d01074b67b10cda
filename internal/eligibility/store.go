package eligibility

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"prover-api/internal/claim"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// Store is the static table of accounts allowed to claim, keyed by public
// key. It is loaded once at startup and only read afterwards, so it needs no
// locking.
type Store struct {
	balances map[[32]byte]*uint256.Int
}

// Load reads an eligibility CSV file. The first row must be a header with a
// "pubkey" and a "balance" column (in any order, other columns ignored).
// Public keys may be 0x-hex or SS58 addresses; balances are base-10.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open eligibility file: %w", err)
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("eligibility file %s: %w", path, err)
	}
	logrus.Infof("loaded %d eligible accounts from %s", s.Len(), path)
	return s, nil
}

// Read parses eligibility rows from r.
func Read(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}

	keyCol, balCol := -1, -1
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "pubkey":
			keyCol = i
		case "balance":
			balCol = i
		}
	}
	if keyCol < 0 || balCol < 0 {
		return nil, errors.New("header must contain pubkey and balance columns")
	}

	s := &Store{balances: make(map[[32]byte]*uint256.Int)}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		pk, err := parsePubkey(row[keyCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bal, err := uint256.FromDecimal(strings.TrimSpace(row[balCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid balance %q: %w", line, row[balCol], err)
		}
		if _, dup := s.balances[pk]; dup {
			return nil, fmt.Errorf("line %d: duplicate pubkey %s", line, row[keyCol])
		}
		s.balances[pk] = bal
	}
	return s, nil
}

func parsePubkey(s string) ([32]byte, error) {
	var pk [32]byte
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return pk, fmt.Errorf("invalid pubkey %q: %w", s, err)
		}
		if len(b) != len(pk) {
			return pk, fmt.Errorf("pubkey %q must be %d bytes", s, len(pk))
		}
		copy(pk[:], b)
		return pk, nil
	}
	_, pk, err := claim.DecodeSS58(s)
	if err != nil {
		return pk, fmt.Errorf("invalid pubkey %q: %w", s, err)
	}
	return pk, nil
}

// Lookup returns the eligible balance of a public key.
func (s *Store) Lookup(pubkey [32]byte) (*uint256.Int, bool) {
	bal, ok := s.balances[pubkey]
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(bal), true
}

func (s *Store) Len() int {
	return len(s.balances)
}
