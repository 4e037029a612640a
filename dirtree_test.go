package compoundfiles

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func childNames(t *testing.T, c *CompoundFile, storage uint32) []string {
	t.Helper()
	var names []string
	for _, id := range c.directory.InOrder(storage) {
		names = append(names, c.directory.entry(id).Name)
	}
	return names
}

func requireValidTree(t *testing.T, c *CompoundFile, storage uint32) {
	t.Helper()
	orderOK, colorsOK := c.directory.checkTree(storage)
	require.True(t, orderOK, "children out of order")
	require.True(t, colorsOK, "red-black properties violated")
}

func TestDirectoryInsertKeepsOrderAndBalance(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	names := []string{"delta", "alpha", "echo", "bravo", "golf", "charlie", "foxtrot",
		"a", "b", "zz", "yy", "xx", "m1", "m2", "m3"}
	for _, name := range names {
		_, err := d.Insert(ROOT_STREAM_ID, NewDirEntry(name, StreamType, 0))
		require.NoError(t, err)
		requireValidTree(t, c, ROOT_STREAM_ID)
	}

	got := childNames(t, c, ROOT_STREAM_ID)
	require.Len(t, got, len(names))
	for i := 1; i < len(got); i++ {
		require.Equal(t, OrderLess, CompareNames(got[i-1], got[i]),
			"%q should sort before %q", got[i-1], got[i])
	}
}

func TestDirectoryInsertCollision(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	_, err := d.Insert(ROOT_STREAM_ID, NewDirEntry("thing", StreamType, 0))
	require.NoError(t, err)
	_, err = d.Insert(ROOT_STREAM_ID, NewDirEntry("THING", StreamType, 0))
	require.ErrorIs(t, err, ErrExists)
}

func TestDirectoryDeleteKeepsBalance(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	var ids []uint32
	for i := 0; i < 20; i++ {
		id, err := d.Insert(ROOT_STREAM_ID, NewDirEntry(fmt.Sprintf("n%02d", i), StreamType, 0))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, i := range []int{0, 19, 7, 12, 3, 4, 5} {
		require.NoError(t, d.Delete(ids[i]))
		requireValidTree(t, c, ROOT_STREAM_ID)
	}
	require.Len(t, childNames(t, c, ROOT_STREAM_ID), 13)
}

func TestDirectoryDeleteOnlyChildClearsStorage(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	storage, err := d.Insert(ROOT_STREAM_ID, NewDirEntry("S", Storage, 0))
	require.NoError(t, err)
	child, err := d.Insert(storage, NewDirEntry("only", StreamType, 0))
	require.NoError(t, err)

	require.NoError(t, d.Delete(child))
	require.Equal(t, NO_STREAM, d.entry(storage).Child)
}

func TestDirectoryRenameAcrossOrder(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	storage, err := d.Insert(ROOT_STREAM_ID, NewDirEntry("S", Storage, 0))
	require.NoError(t, err)
	aa, err := d.Insert(storage, NewDirEntry("aa", StreamType, 0))
	require.NoError(t, err)
	_, err = d.Insert(storage, NewDirEntry("bb", StreamType, 0))
	require.NoError(t, err)

	require.NoError(t, d.Rename(aa, "zz"))
	require.Equal(t, []string{"bb", "zz"}, childNames(t, c, storage))
	requireValidTree(t, c, storage)
	require.Equal(t, "zz", d.entry(aa).Name)
}

func TestDirectoryRenameCollisionLeavesTreeAlone(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	aa, err := d.Insert(ROOT_STREAM_ID, NewDirEntry("aa", StreamType, 0))
	require.NoError(t, err)
	_, err = d.Insert(ROOT_STREAM_ID, NewDirEntry("bb", StreamType, 0))
	require.NoError(t, err)

	before := childNames(t, c, ROOT_STREAM_ID)
	err = d.Rename(aa, "BB")
	require.ErrorIs(t, err, ErrExists)
	require.Equal(t, before, childNames(t, c, ROOT_STREAM_ID))
	require.Equal(t, "aa", d.entry(aa).Name)
}

func TestDirectorySlotReuseIsLIFO(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	first, err := d.Insert(ROOT_STREAM_ID, NewDirEntry("first", StreamType, 0))
	require.NoError(t, err)
	_, err = d.Insert(ROOT_STREAM_ID, NewDirEntry("second", StreamType, 0))
	require.NoError(t, err)

	require.NoError(t, d.Delete(first))
	reused, err := d.Insert(ROOT_STREAM_ID, NewDirEntry("third", StreamType, 0))
	require.NoError(t, err)
	require.Equal(t, first, reused)
}

func TestDirectoryGrowsByWholeSectors(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory
	perSector := c.header.DirEntriesPerSector()

	for i := 0; i < perSector; i++ {
		_, err := d.Insert(ROOT_STREAM_ID, NewDirEntry(fmt.Sprintf("e%02d", i), StreamType, 0))
		require.NoError(t, err)
	}
	require.Equal(t, 2*perSector, len(d.DirEntries))

	chain, err := c.alloc.Chain(d.DirStartSector)
	require.NoError(t, err)
	require.Len(t, chain, 2)
}

func TestDirectoryRepaintOnBadColors(t *testing.T) {
	c := newTestContainer(t)
	d := c.directory

	var ids []uint32
	for _, name := range []string{"aa", "bb", "cc", "dd", "ee"} {
		id, err := d.Insert(ROOT_STREAM_ID, NewDirEntry(name, StreamType, 0))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Paint everything red: a blatant violation that leaves BST order
	// intact.
	for _, id := range ids {
		d.entry(id).Color = Red
	}
	_, colorsOK := d.checkTree(ROOT_STREAM_ID)
	require.False(t, colorsOK)

	sink := &CollectSink{}
	d.sink = sink
	require.NoError(t, d.Validate())
	require.True(t, sink.Has(DirEntryWarning))
	requireValidTree(t, c, ROOT_STREAM_ID)
	require.Equal(t, []string{"aa", "bb", "cc", "dd", "ee"}, childNames(t, c, ROOT_STREAM_ID))
}

func TestRepaintStorageShapes(t *testing.T) {
	for n := 1; n <= 33; n++ {
		c := newTestContainer(t)
		d := c.directory
		for i := 0; i < n; i++ {
			_, err := d.Insert(ROOT_STREAM_ID, NewDirEntry(fmt.Sprintf("x%03d", i), StreamType, 0))
			require.NoError(t, err)
		}
		d.repaintStorage(ROOT_STREAM_ID)
		requireValidTree(t, c, ROOT_STREAM_ID)
		require.Len(t, childNames(t, c, ROOT_STREAM_ID), n)
	}
}
