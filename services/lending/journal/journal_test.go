package journal

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"creditpool/core/events"
	"creditpool/core/types"
)

func openTestJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path, nil)
	require.NoError(t, err)
	base := time.Unix(1_700_000_000, 0)
	var tick int64
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return j
}

func TestAppendListAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j := openTestJournal(t, path)
	defer j.Close()

	var emitter events.Emitter = j
	emitter.Emit(events.Deposited{
		Asset:   common.HexToAddress("0x70"),
		Account: common.HexToAddress("0x01"),
		Amount:  uint256.NewInt(1000),
		Shares:  uint256.NewInt(1000),
	})
	for i := 0; i < 4; i++ {
		_, err := j.Append(types.NewEvent("lending.test").Set("i", string(rune('a'+i))))
		require.NoError(t, err)
	}

	all, err := j.List(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, events.TypeDeposit, all[0].Type)
	require.Equal(t, "1000", all[0].Attributes["amount"])
	for i, entry := range all {
		require.Equal(t, uint64(i+1), entry.Seq)
		require.NotEmpty(t, entry.ID)
		if i > 0 {
			require.Equal(t, all[i-1].Hash, entry.PrevHash)
		}
	}
	require.Equal(t, all[4].Hash, j.Head())

	page, err := j.List(2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, uint64(3), page[0].Seq)
	require.Equal(t, uint64(4), page[1].Seq)

	tail, err := j.List(5, 10)
	require.NoError(t, err)
	require.Empty(t, tail)

	require.NoError(t, j.Verify())
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j := openTestJournal(t, path)
	first, err := j.Append(types.NewEvent("lending.first"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	reopened := openTestJournal(t, path)
	defer reopened.Close()
	require.Equal(t, first.Hash, reopened.Head())
	second, err := reopened.Append(types.NewEvent("lending.second"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Seq)
	require.Equal(t, first.Hash, second.PrevHash)
	require.NoError(t, reopened.Verify())
}

func TestVerifyDetectsTampering(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	defer j.Close()
	for _, name := range []string{"a", "b", "c"} {
		_, err := j.Append(types.NewEvent("lending.test").Set("name", name))
		require.NoError(t, err)
	}

	require.NoError(t, j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		var entry Entry
		if err := json.Unmarshal(bucket.Get(seqKey(2)), &entry); err != nil {
			return err
		}
		entry.Attributes["name"] = "z"
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(2), encoded)
	}))
	require.ErrorIs(t, j.Verify(), ErrChainBroken)
}

func TestAppendRejectsNilEvent(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	defer j.Close()
	_, err := j.Append(nil)
	require.Error(t, err)
	j.Emit(nil)
	entries, err := j.List(0, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRolledBackAppendLeavesHeadUnchanged(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	defer j.Close()
	first, err := j.Append(types.NewEvent("lending.first"))
	require.NoError(t, err)

	errAbort := errors.New("abort")
	err = j.db.Update(func(tx *bolt.Tx) error {
		if _, _, err := j.put(tx, types.NewEvent("lending.lost")); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	require.Equal(t, first.Hash, j.Head())

	second, err := j.Append(types.NewEvent("lending.second"))
	require.NoError(t, err)
	require.Equal(t, first.Hash, second.PrevHash)
	require.NoError(t, j.Verify())
}
