package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/applegrimm/reservesync/internal/cache"
	"github.com/applegrimm/reservesync/internal/models"
)

func testData() []models.Reservation {
	return []models.Reservation{
		{RowID: 1, OrderID: "A", PickupDate: "2024-03-05"},
		{RowID: 2, OrderID: "A", PickupDate: "2024-03-05", IsCompleted: true},
	}
}

func newStore(t *testing.T, ttl time.Duration) *cache.Store {
	t.Helper()
	st, err := cache.New(t.TempDir(), nil, ttl)
	assert.NoError(t, err)
	return st
}

func TestPutThenGetWithinTTL(t *testing.T) {
	st := newStore(t, 30*time.Second)

	st.Put("shop42", "today_onwards", testData(), "fp1")
	got, ok := st.Get("shop42", "today_onwards")
	assert.True(t, ok)
	assert.Equal(t, testData(), got)
}

func TestGetAfterTTLReturnsAbsentAndDeletes(t *testing.T) {
	dir := t.TempDir()
	st, err := cache.New(dir, nil, 30*time.Millisecond)
	assert.NoError(t, err)

	st.Put("shop42", "today_onwards", testData(), "fp1")
	time.Sleep(50 * time.Millisecond)

	_, ok := st.Get("shop42", "today_onwards")
	assert.False(t, ok)

	files, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Empty(t, files, "expired entry must be deleted on read")
}

func TestViewsAreIndependent(t *testing.T) {
	st := newStore(t, time.Minute)

	st.Put("shop42", "today_onwards", testData(), "")
	_, ok := st.Get("shop42", "past_7days")
	assert.False(t, ok)

	st.Put("shop42", "past_7days", testData()[:1], "")
	got, ok := st.Get("shop42", "past_7days")
	assert.True(t, ok)
	assert.Len(t, got, 1)
}

func TestTenantsAreIndependent(t *testing.T) {
	st := newStore(t, time.Minute)

	st.Put("shop42", "today_onwards", testData(), "")
	_, ok := st.Get("shop99", "today_onwards")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	st := newStore(t, time.Minute)

	st.Put("shop42", "today_onwards", testData(), "")
	st.Invalidate("shop42", "today_onwards")
	_, ok := st.Get("shop42", "today_onwards")
	assert.False(t, ok)
}

func TestUnparsableEntryIsDropped(t *testing.T) {
	dir := t.TempDir()
	st, err := cache.New(dir, nil, time.Minute)
	assert.NoError(t, err)

	st.Put("shop42", "today_onwards", testData(), "")
	files, err := filepath.Glob(filepath.Join(dir, "reservation_cache_*"))
	assert.NoError(t, err)
	assert.Len(t, files, 1)
	assert.NoError(t, os.WriteFile(files[0], []byte("{broken"), 0644))

	_, ok := st.Get("shop42", "today_onwards")
	assert.False(t, ok)
	_, statErr := os.Stat(files[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	st, err := cache.New(dir, nil, time.Hour)
	assert.NoError(t, err)

	for _, tenant := range []string{"s1", "s2", "s3", "s4"} {
		st.Put(tenant, "today_onwards", testData(), "")
	}
	// space out mtimes so prune ordering is deterministic
	files, err := filepath.Glob(filepath.Join(dir, "reservation_cache_*"))
	assert.NoError(t, err)
	assert.Len(t, files, 4)
	for i, f := range files {
		old := time.Now().Add(time.Duration(i-10) * time.Minute)
		assert.NoError(t, os.Chtimes(f, old, old))
	}

	removed := st.Prune(2)
	assert.Equal(t, 2, removed)

	left, err := filepath.Glob(filepath.Join(dir, "reservation_cache_*"))
	assert.NoError(t, err)
	assert.ElementsMatch(t, files[2:], left, "the two newest entries survive")
}
