package rangeset

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	s, err := New(0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, s.Size())

	s, err = New(1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, s.Size())

	_, err = New(0, 5)
	require.Error(t, err)

	_, err = New(5, 1)
	require.Error(t, err)
}

func TestPushIdempotent(t *testing.T) {
	s, err := New(0, 0)
	require.NoError(t, err)
	s.Push(5)
	s.Push(5)
	require.EqualValues(t, 1, s.Size())
	require.Equal(t, []Range{{5, 5}}, s.Ranges())
}

func TestPopAdvancesAndPromotes(t *testing.T) {
	s, err := New(1, 2)
	require.NoError(t, err)
	s.Push(10) // disjoint range

	id, ok := s.Pop()
	require.True(t, ok)
	require.EqualValues(t, 1, id)

	id, ok = s.Pop()
	require.True(t, ok)
	require.EqualValues(t, 2, id)

	id, ok = s.Pop()
	require.True(t, ok)
	require.EqualValues(t, 10, id, "%s", strings.Join(pretty.Sprint(s.Ranges()), ""))

	_, ok = s.Pop()
	require.False(t, ok)
}

// TestScript drives the allocator through scripted push/pop/size commands
// grounded on pebble's own datadriven test style.
func TestScript(t *testing.T) {
	datadriven.RunTest(t, "testdata/script", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "new":
			var begin, end uint64
			d.ScanArgs(t, "begin", &begin)
			d.ScanArgs(t, "end", &end)
			var err error
			set, err = New(begin, end)
			if err != nil {
				return fmt.Sprintf("error: %s\n", err)
			}
			return ""
		case "push":
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				v, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
				require.NoError(t, err)
				set.Push(v)
			}
			return ""
		case "pop":
			id, ok := set.Pop()
			return fmt.Sprintf("id=%d ok=%v\n", id, ok)
		case "size":
			return fmt.Sprintf("%d\n", set.Size())
		case "ranges":
			var sb strings.Builder
			for _, r := range set.Ranges() {
				fmt.Fprintf(&sb, "[%d,%d]\n", r.Begin, r.End)
			}
			return sb.String()
		default:
			t.Fatalf("unknown command %q", d.Cmd)
			return ""
		}
	})
}

var set *Set
