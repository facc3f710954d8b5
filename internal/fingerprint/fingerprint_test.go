package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/applegrimm/reservesync/internal/fingerprint"
	"github.com/applegrimm/reservesync/internal/models"
)

func twoRows() []models.Reservation {
	return []models.Reservation{
		{RowID: 1, OrderID: "A", Memo: "call first"},
		{RowID: 2, OrderID: "A", IsCompleted: true},
	}
}

func TestSumDeterministic(t *testing.T) {
	assert.Equal(t, fingerprint.Sum(twoRows()), fingerprint.Sum(twoRows()))
	assert.Equal(t, fingerprint.Sum(nil), fingerprint.Sum([]models.Reservation{}))
}

func TestSumSensitivity(t *testing.T) {
	base := fingerprint.Sum(twoRows())

	completed := twoRows()
	completed[0].IsCompleted = true
	assert.NotEqual(t, base, fingerprint.Sum(completed))

	memo := twoRows()
	memo[0].Memo = "call second"
	assert.NotEqual(t, base, fingerprint.Sum(memo))

	shorter := twoRows()[:1]
	assert.NotEqual(t, base, fingerprint.Sum(shorter))
}

func TestSumIgnoresDisplayFields(t *testing.T) {
	a := twoRows()
	b := twoRows()
	b[0].CustomerName = "renamed"
	b[1].PickupTime = "13:00"
	assert.Equal(t, fingerprint.Sum(a), fingerprint.Sum(b))
}

func TestSumDoesNotMutate(t *testing.T) {
	list := twoRows()
	before := make([]models.Reservation, len(list))
	copy(before, list)
	_ = fingerprint.Sum(list)
	assert.Equal(t, before, list)
}
