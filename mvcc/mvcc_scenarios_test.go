package mvcc

import (
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/Connor1996/badger"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
)

func TestMVCCScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "mvcc end-to-end scenarios")
}

// scenarioDB mirrors openTestDB from mvcc_test.go, kept separate so the
// ginkgo suite doesn't depend on *testing.T helpers.
func scenarioDB() (*badger.DB, func()) {
	dir, err := ioutil.TempDir("", "ridgekv-mvcc-scenario")
	Expect(err).NotTo(HaveOccurred())
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	Expect(err).NotTo(HaveOccurred())
	return db, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}

func scenarioWith(db *badger.DB, f func(txn *badger.Txn, wb *engine_util.WriteBatch)) {
	txn := db.NewTransaction(true)
	defer txn.Discard()
	wb := new(engine_util.WriteBatch)
	f(txn, wb)
	Expect(wb.WriteToDB(db)).To(Succeed())
}

func scenarioPut(db *badger.DB, key, value string, startTs, commitTs uint64) {
	scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		t := NewTxn(txn, wb, startTs)
		Expect(t.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte(key), Value: []byte(value)}, []byte(key))).To(Succeed())
	})
	scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		t := NewTxn(txn, wb, startTs)
		Expect(t.Commit([]byte(key), commitTs)).To(Succeed())
	})
}

func scenarioDelete(db *badger.DB, key string, startTs, commitTs uint64) {
	scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		t := NewTxn(txn, wb, startTs)
		Expect(t.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Del, Key: []byte(key)}, []byte(key))).To(Succeed())
	})
	scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		t := NewTxn(txn, wb, startTs)
		Expect(t.Commit([]byte(key), commitTs)).To(Succeed())
	})
}

func scenarioGet(db *badger.DB, key string, ts uint64) []byte {
	txn := db.NewTransaction(false)
	defer txn.Discard()
	val, err := NewSnapshot(txn, ts).Get([]byte(key))
	Expect(err).NotTo(HaveOccurred())
	return val
}

var _ = Describe("put then get at various timestamps", func() {
	var db *badger.DB
	var cleanup func()

	BeforeEach(func() {
		db, cleanup = scenarioDB()
		scenarioPut(db, "x", "v1", 5, 10)
	})
	AfterEach(func() { cleanup() })

	It("is invisible before the commit ts", func() {
		Expect(scenarioGet(db, "x", 9)).To(BeNil())
	})
	It("is visible at the commit ts", func() {
		Expect(scenarioGet(db, "x", 10)).To(Equal([]byte("v1")))
	})
	It("stays visible to later readers", func() {
		Expect(scenarioGet(db, "x", 13)).To(Equal([]byte("v1")))
	})
})

var _ = Describe("put then delete", func() {
	var db *badger.DB
	var cleanup func()

	BeforeEach(func() {
		db, cleanup = scenarioDB()
		scenarioPut(db, "x", "v1", 5, 10)
		scenarioDelete(db, "x", 15, 20)
	})
	AfterEach(func() { cleanup() })

	It("still shows the pre-delete value to a reader between the two commits", func() {
		Expect(scenarioGet(db, "x", 17)).To(Equal([]byte("v1")))
	})
	It("shows nothing once the delete has committed", func() {
		Expect(scenarioGet(db, "x", 23)).To(BeNil())
	})
})

var _ = Describe("rollback releases the secondary's lock", func() {
	var db *badger.DB
	var cleanup func()

	BeforeEach(func() {
		db, cleanup = scenarioDB()
		scenarioPut(db, "s", "prior-s", 1, 2)
		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 5)
			Expect(t.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("p"), Value: []byte("p5")}, []byte("p"))).To(Succeed())
		})
		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 5)
			Expect(t.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("s"), Value: []byte("s5")}, []byte("p"))).To(Succeed())
		})
	})
	AfterEach(func() { cleanup() })

	It("reports the secondary as locked before any resolution", func() {
		txn := db.NewTransaction(false)
		defer txn.Discard()
		_, err := NewSnapshot(txn, 10).Get([]byte("s"))
		Expect(err).To(HaveOccurred())
		locked, ok := err.(*ErrKeyIsLocked)
		Expect(ok).To(BeTrue())
		Expect(string(locked.Primary)).To(Equal("p"))
		Expect(locked.StartTs).To(Equal(uint64(5)))
	})

	It("lets rollback_then_get on the secondary surface the prior value once the primary is rolled back", func() {
		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 5)
			Expect(t.Rollback([]byte("p"))).To(Succeed())
		})
		txn := db.NewTransaction(true)
		defer txn.Discard()
		wb := new(engine_util.WriteBatch)
		t := NewTxn(txn, wb, 5)
		val, err := t.RollbackThenGet([]byte("s"))
		Expect(wb.WriteToDB(db)).To(Succeed())
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal([]byte("prior-s")))
	})
})

var _ = Describe("commit_then_get reads the prior value below its own commit ts", func() {
	var db *badger.DB
	var cleanup func()

	BeforeEach(func() {
		db, cleanup = scenarioDB()
		scenarioPut(db, "s", "prior-s", 1, 2)
		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 5)
			Expect(t.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("p"), Value: []byte("p5")}, []byte("p"))).To(Succeed())
		})
		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 5)
			Expect(t.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("s"), Value: []byte("s5")}, []byte("p"))).To(Succeed())
		})
		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 5)
			Expect(t.Commit([]byte("p"), 10)).To(Succeed())
		})
	})
	AfterEach(func() { cleanup() })

	commitThenGet := func(getTs uint64) []byte {
		txn := db.NewTransaction(true)
		defer txn.Discard()
		wb := new(engine_util.WriteBatch)
		t := NewTxn(txn, wb, 5)
		val, err := t.CommitThenGet([]byte("s"), 10, getTs)
		Expect(wb.WriteToDB(db)).To(Succeed())
		Expect(err).NotTo(HaveOccurred())
		return val
	}

	It("returns the prior value when read below the new commit ts", func() {
		Expect(commitThenGet(8)).To(Equal([]byte("prior-s")))
	})
	It("returns the freshly committed value once read at or after it", func() {
		Expect(commitThenGet(12)).To(Equal([]byte("s5")))
	})
})

var _ = Describe("a meta chain that overflows one page stays readable and idempotent", func() {
	It("replays a stale commit on an already-committed key as a no-op", func() {
		db, cleanup := scenarioDB()
		defer cleanup()

		for ts := uint64(1); ts <= 300; ts++ {
			scenarioPut(db, "hot", fmt.Sprintf("v%d", ts), ts*2, ts*2+1)
		}
		Expect(scenarioGet(db, "hot", 601)).To(Equal([]byte("v300")))

		scenarioWith(db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
			t := NewTxn(txn, wb, 600)
			Expect(t.Commit([]byte("hot"), 601)).To(Succeed())
		})
		Expect(scenarioGet(db, "hot", 601)).To(Equal([]byte("v300")))
	})
})
