package t

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

// Scratch test: probe bbolt as an embedded alternative to mysql, one bucket
// per conversation keyed by message id.
func Test(t *testing.T) {
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "my.db"), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("alice__bob"))
		if err != nil {
			return err
		}
		id, _ := b.NextSequence()
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return b.Put(key, []byte("hi"))
	})
	if err != nil {
		t.Fatal(err)
	}
}
