package indexes

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/dhtrecords/internal/ir"
)

func TestDiff(t *testing.T) {
	a, b, c, d := addr("A"), addr("B"), addr("C"), addr("D")
	tests := []struct {
		name      string
		now, prev []ir.IdentityAddress
		want      Delta
	}{
		{
			name: "swap one",
			now:  []ir.IdentityAddress{a, b},
			prev: []ir.IdentityAddress{b, c},
			want: Delta{Added: []ir.IdentityAddress{a}, Removed: []ir.IdentityAddress{c}},
		},
		{
			name: "from nothing",
			now:  []ir.IdentityAddress{a, b},
			want: Delta{Added: []ir.IdentityAddress{a, b}, Removed: []ir.IdentityAddress{}},
		},
		{
			name: "to nothing",
			prev: []ir.IdentityAddress{c},
			want: Delta{Added: []ir.IdentityAddress{}, Removed: []ir.IdentityAddress{c}},
		},
		{
			name: "unchanged",
			now:  []ir.IdentityAddress{a, b},
			prev: []ir.IdentityAddress{b, a},
			want: Delta{Added: []ir.IdentityAddress{}, Removed: []ir.IdentityAddress{}},
		},
		{
			name: "duplicates collapse",
			now:  []ir.IdentityAddress{d, d, a},
			prev: []ir.IdentityAddress{c, c},
			want: Delta{Added: []ir.IdentityAddress{d, a}, Removed: []ir.IdentityAddress{c}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Diff(tt.now, tt.prev)); diff != "" {
				t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type event struct {
	Action string
}

func TestLatest_StateFold(t *testing.T) {
	events := []event{{"create"}, {"pass"}, {"note"}}

	state, ok := Latest(events, func(e event) (string, bool, error) {
		return e.Action, e.Action == "pass" || e.Action == "fail", nil
	})
	assert.True(t, ok)
	assert.Equal(t, "pass", state)
}

func TestLatest_SkipsErrors(t *testing.T) {
	raw := []string{"1", "2", "garbage"}

	n, ok := Latest(raw, func(s string) (int, bool, error) {
		v, err := strconv.Atoi(s)
		return v, err == nil, err
	})
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestLatest_NoMatch(t *testing.T) {
	n, ok := Latest([]int{1, 3}, func(v int) (int, bool, error) { return v, v%2 == 0, nil })
	assert.False(t, ok)
	assert.Zero(t, n)

	_, ok = Latest(nil, func(v int) (int, bool, error) { return v, true, nil })
	assert.False(t, ok)
}

func TestBackward_EarlyExit(t *testing.T) {
	var seen []int
	for v := range Backward([]int{1, 2, 3, 4}) {
		seen = append(seen, v)
		if v == 3 {
			break
		}
	}
	assert.Equal(t, []int{4, 3}, seen)
}
