// Package page persists site tensors and bond-dimension bookkeeping in
// a sqlite database, so a run can page truncated factors out of memory
// and be inspected after the fact.
package page

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"mpsweep/tensor"
)

const (
	tableTensor = "tensor"
	tableBond   = "bond"

	opTimeout = 3 * time.Second
)

// Store is a sqlite-backed tensor store.
type Store struct {
	Path string
	db   *sql.DB
}

// Open opens or creates the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: dbPath, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutTensor stores t under key, replacing any previous value.
func (s *Store) PutTensor(key string, t *tensor.Dense) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, t.Data()); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (key, shape, data) VALUES (?, ?, ?)`, tableTensor)
	if _, err := s.db.ExecContext(ctx, sqlStr, key, shapeString(t.Shape()), buf.Bytes()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %s", sqlStr, key))
	}
	return nil
}

// Tensor retrieves the tensor stored under key.
func (s *Store) Tensor(key string) (*tensor.Dense, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sqlStr := fmt.Sprintf(`SELECT shape, data FROM %s WHERE key=?`, tableTensor)
	var shapeStr string
	var blob []byte
	if err := s.db.QueryRowContext(ctx, sqlStr, key).Scan(&shapeStr, &blob); err != nil {
		return nil, errors.Wrap(err, key)
	}

	shape, err := parseShape(shapeStr)
	if err != nil {
		return nil, errors.Wrap(err, key)
	}
	data := make([]float64, len(blob)/8)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &data); err != nil {
		return nil, errors.Wrap(err, key)
	}
	t, err := tensor.New(shape, data)
	if err != nil {
		return nil, errors.Wrap(err, key)
	}
	return t, nil
}

// PutBond records the retained bond dimension at site i on the given
// side ("L" or "R").
func (s *Store) PutBond(site int, side string, dim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (site, side, dim) VALUES (?, ?, ?)`, tableBond)
	if _, err := s.db.ExecContext(ctx, sqlStr, site, side, dim); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %d %s", sqlStr, site, side))
	}
	return nil
}

// Bond returns the recorded bond dimension at site i on the given side.
func (s *Store) Bond(site int, side string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT dim FROM %s WHERE site=? AND side=?`, tableBond)
	var dim int
	if err := s.db.QueryRowContext(ctx, sqlStr, site, side).Scan(&dim); err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("%d %s", site, side))
	}
	return dim, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, shape TEXT, data BLOB) STRICT`, tableTensor),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (site INTEGER, side TEXT, dim INTEGER, PRIMARY KEY (site, side)) STRICT`, tableBond),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

func shapeString(shape []int) string {
	ss := make([]string, 0, len(shape))
	for _, d := range shape {
		ss = append(ss, strconv.Itoa(d))
	}
	return strings.Join(ss, ",")
}

func parseShape(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	shape := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrap(err, s)
		}
		shape = append(shape, d)
	}
	return shape, nil
}
