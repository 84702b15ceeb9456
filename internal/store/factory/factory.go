package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drixzor/drode/internal/store"
	sq "github.com/drixzor/drode/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite: "sqlite://<path>", ":memory:" or a bare file path
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty DSN")
	}
	ld := strings.ToLower(d)
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	if i := strings.Index(ld, "://"); i > 0 {
		return nil, fmt.Errorf("unsupported store scheme %q", d[:i])
	}
	return sq.New(d)
}
