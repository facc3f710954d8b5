// Package fingerprint computes a cheap order-sensitive summary of a
// reservation set, used to skip redundant re-render and re-cache work
// after a refresh. Collisions only delay a redraw until the next poll.
package fingerprint

import (
	"strconv"

	"github.com/applegrimm/reservesync/internal/models"
)

// Sum returns a deterministic fingerprint over rowId, isCompleted and
// memo of every reservation, plus the set length. Display-only fields
// do not participate.
func Sum(list []models.Reservation) string {
	var h int32
	roll := func(s string) {
		for i := 0; i < len(s); i++ {
			h = (h << 5) - h + int32(s[i])
		}
	}
	roll(strconv.Itoa(len(list)))
	for _, r := range list {
		roll("|")
		roll(strconv.Itoa(r.RowID))
		if r.IsCompleted {
			roll(":1:")
		} else {
			roll(":0:")
		}
		roll(r.Memo)
	}
	return strconv.FormatInt(int64(h), 10)
}
