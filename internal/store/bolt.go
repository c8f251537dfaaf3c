package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
)

// Bolt keeps the record in a bbolt file. The version is a per-key revision counter
// checked and bumped inside the same update transaction.
type Bolt struct {
	db     *bbolt.DB
	file   string
	bucket []byte
	key    string
}

func OpenBolt(file, bucket, key string) (*Bolt, error) {
	db, err := bbolt.Open(file, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.New(errs.StoreUnavailable, "open bolt "+file, err)
	}
	return &Bolt{db: db, file: file, bucket: []byte(bucket), key: key}, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) Describe() string { return fmt.Sprintf("bolt:%s/%s/%s", b.file, b.bucket, b.key) }

func (b *Bolt) dataKey() []byte { return []byte(b.key + "/data") }
func (b *Bolt) revKey() []byte  { return []byte(b.key + "/rev") }

func (b *Bolt) Get(ctx context.Context) ([]byte, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, b.Describe(), err)
	}

	var (
		data  []byte
		rev   []byte
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		v := bucket.Get(b.dataKey())
		if v == nil {
			return nil
		}
		// values are only valid for the life of the transaction
		data = append([]byte(nil), v...)
		rev = append([]byte(nil), bucket.Get(b.revKey())...)
		found = true
		return nil
	})
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, b.Describe(), err)
	}
	if !found {
		return nil, NoVersion, errs.Newf(errs.NotFound, b.Describe(), "no record stored")
	}
	return data, Version(rev), nil
}

func (b *Bolt) Put(ctx context.Context, data []byte, expected Version, _ string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, b.Describe(), err)
	}

	var next Version
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}

		cur := Version(bucket.Get(b.revKey()))
		if cur != expected {
			return errs.Newf(errs.VersionConflict, b.Describe(), "expected %s, found %s", expected.Short(), cur.Short())
		}

		var n uint64
		if cur != NoVersion {
			n, err = strconv.ParseUint(string(cur), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt revision %q: %w", cur, err)
			}
		}
		next = Version(strconv.FormatUint(n+1, 10))

		if err := bucket.Put(b.dataKey(), data); err != nil {
			return err
		}
		return bucket.Put(b.revKey(), []byte(next))
	})
	if err != nil {
		if errs.CodeOf(err) == errs.VersionConflict {
			return NoVersion, err
		}
		return NoVersion, errs.New(errs.StoreUnavailable, b.Describe(), err)
	}
	return next, nil
}
