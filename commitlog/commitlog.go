// Package commitlog keeps a durable, queryable ledger of committed
// transactions in a badger store next to the database file. The ledger is
// independent of the
// page-level WAL: the WAL is about page durability and is rewound by
// checkpoints, while this log answers "which transactions committed, in
// what order, touching which pages" after the frames themselves are gone.
package commitlog

import (
	"os"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/util"
)

// Record is one committed transaction's ledger entry.
type Record struct {
	TxnID     uint64
	CommitSeq uint64
	Pages     []uint32
}

// Log is an open commit ledger. It implements mvcc.CommitLogger.
type Log struct {
	db *badger.DB
}

var _ mvcc.CommitLogger = (*Log)(nil)

// Open opens, creating if necessary, the ledger directory at dataDir.
func Open(dataDir string) (*Log, error) {
	os.MkdirAll(dataDir, 0755)

	opts := badger.DefaultOptions(dataDir)
	opts = opts.WithLogger(logrus.StandardLogger())
	db, err := badger.Open(opts)
	if err != nil {
		return nil, dberr.Wrap(dberr.IoError, err, "commitlog: open %s", dataDir)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

func seqKey(seq uint64) []byte {
	return util.EncodeUint64([]byte{'c'}, seq)
}

func encodeRecord(rec Record) []byte {
	buf := util.EncodeVarint(nil, rec.TxnID)
	buf = util.EncodeVarint(buf, rec.CommitSeq)
	buf = util.EncodeVarint(buf, uint64(len(rec.Pages)))
	for _, pn := range rec.Pages {
		buf = util.EncodeVarint(buf, uint64(pn))
	}
	return buf
}

func decodeRecord(buf []byte) (Record, error) {
	var rec Record
	var ok bool
	buf, rec.TxnID, ok = util.DecodeVarint(buf)
	if !ok {
		return rec, dberr.New(dberr.Corrupt, "commitlog: short record")
	}
	buf, rec.CommitSeq, ok = util.DecodeVarint(buf)
	if !ok {
		return rec, dberr.New(dberr.Corrupt, "commitlog: short record")
	}
	var n uint64
	buf, n, ok = util.DecodeVarint(buf)
	if !ok {
		return rec, dberr.New(dberr.Corrupt, "commitlog: short record")
	}
	rec.Pages = make([]uint32, 0, n)
	for i := uint64(0); i < n; i++ {
		var pn uint64
		buf, pn, ok = util.DecodeVarint(buf)
		if !ok {
			return rec, dberr.New(dberr.Corrupt, "commitlog: short record")
		}
		rec.Pages = append(rec.Pages, uint32(pn))
	}
	return rec, nil
}

// LogCommit appends one commit record, keyed by its commit sequence.
func (l *Log) LogCommit(id mvcc.TxnId, seq mvcc.CommitSeq, pages []uint32) error {
	rec := Record{TxnID: uint64(id), CommitSeq: uint64(seq), Pages: pages}
	err := l.db.Update(func(tx *badger.Txn) error {
		return tx.Set(seqKey(rec.CommitSeq), encodeRecord(rec))
	})
	if err != nil {
		return dberr.Wrap(dberr.IoError, err, "commitlog: append seq %d", seq)
	}
	return nil
}

// Get looks up the record committed at seq.
func (l *Log) Get(seq uint64) (Record, bool, error) {
	var rec Record
	var found bool
	err := l.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(seqKey(seq))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decodeRecord(val)
			if err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return rec, found, err
}

// Scan walks records from seq upward in commit order, stopping when fn
// returns false.
func (l *Log) Scan(seq uint64, fn func(Record) bool) error {
	return l.db.View(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seqKey(seq)); it.ValidForPrefix([]byte{'c'}); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = decodeRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if !fn(rec) {
				return nil
			}
		}
		return nil
	})
}
