package flags

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/oceanco2/intake/intake/pkg/dserror"
)

func TestIntake_Flags_Set(t *testing.T) {
	t.Parallel()

	t.Run("orders entries by row then column then text fields", func(t *testing.T) {
		t.Parallel()

		s := NewSet(
			Entry{Row: 2, Column: 0, Severity: SeverityBad, Value: WOCEBad, Name: "b"},
			Entry{Row: 1, Column: 5, Severity: SeverityBad, Value: WOCEBad, Name: "a"},
			Entry{Row: 1, Column: 3, Severity: SeverityQuestionable, Value: WOCEQuestionable, Name: "z"},
			Entry{Row: 1, Column: 3, Severity: SeverityBad, Value: WOCEBad, Name: "z"},
		)
		got := s.Entries()
		want := []Entry{
			{Row: 1, Column: 3, Severity: SeverityBad, Value: WOCEBad, Name: "z"},
			{Row: 1, Column: 3, Severity: SeverityQuestionable, Value: WOCEQuestionable, Name: "z"},
			{Row: 1, Column: 5, Severity: SeverityBad, Value: WOCEBad, Name: "a"},
			{Row: 2, Column: 0, Severity: SeverityBad, Value: WOCEBad, Name: "b"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("entries mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, []int{1, 2}, s.Rows())
	})

	t.Run("drops duplicates", func(t *testing.T) {
		t.Parallel()

		e := Entry{Row: 1, Column: 1, Severity: SeverityBad, Value: WOCEBad, Name: "range"}
		s := NewSet(e, e)
		require.Equal(t, 1, s.Len())
		require.False(t, s.Add(e))
		require.True(t, s.Add(Entry{Row: 0, Column: 1, Severity: SeverityBad, Value: WOCEBad, Name: "range"}))
		require.Equal(t, 0, s.Entries()[0].Row)
	})

	t.Run("union merges in order", func(t *testing.T) {
		t.Parallel()

		a := NewSet(Entry{Row: 3, Column: 0, Name: "x"})
		b := NewSet(Entry{Row: 1, Column: 0, Name: "y"}, Entry{Row: 3, Column: 0, Name: "x"})
		u := a.Union(b)
		require.Equal(t, 2, u.Len())
		require.Equal(t, []int{1, 3}, u.Rows())
		require.Equal(t, 1, a.Len())
	})
}

func TestIntake_Flags_Decode(t *testing.T) {
	t.Parallel()

	t.Run("empty list decodes to empty set", func(t *testing.T) {
		t.Parallel()

		for _, text := range []string{"[ ]", "[]", "  [   ]  "} {
			s, err := Decode(text)
			require.NoError(t, err, text)
			require.Equal(t, 0, s.Len())
		}
	})

	t.Run("single entry", func(t *testing.T) {
		t.Parallel()

		s, err := Decode(`[ [3, 1, "BAD", "4", "range"] ]`)
		require.NoError(t, err)
		require.Equal(t, []Entry{{Row: 3, Column: 1, Severity: "BAD", Value: "4", Name: "range"}}, s.Entries())
	})

	t.Run("multiple entries are sorted", func(t *testing.T) {
		t.Parallel()

		s, err := Decode(`[[5,0,"BAD","4","parse"],[ 2 , 7 , "QUESTIONABLE" , "3" , "range" ]]`)
		require.NoError(t, err)
		require.Equal(t, []int{2, 5}, s.Rows())
		require.Equal(t, "QUESTIONABLE", s.Entries()[0].Severity)
	})

	t.Run("empty quoted fields are allowed", func(t *testing.T) {
		t.Parallel()

		s, err := Decode(`[ [0, 0, "", "", ""] ]`)
		require.NoError(t, err)
		require.Equal(t, 1, s.Len())
	})

	t.Run("missing outer brackets is a malformed set", func(t *testing.T) {
		t.Parallel()

		for _, text := range []string{"", "[", `[3, 1, "BAD", "4", "range"`, `x[ ]`, `{ }`} {
			_, err := Decode(text)
			require.ErrorIs(t, err, dserror.ErrMalformedFlagSet, text)
		}
	})

	t.Run("structural deviations are malformed entries", func(t *testing.T) {
		t.Parallel()

		cases := map[string]string{
			"too few fields":      `[ [3, 1, "BAD", "4"] ]`,
			"too many fields":     `[ [3, 1, "BAD", "4", "range", "x"] ]`,
			"row not an integer":  `[ [a, 1, "BAD", "4", "range"] ]`,
			"negative column":     `[ [3, -1, "BAD", "4", "range"] ]`,
			"unquoted severity":   `[ [3, 1, BAD, "4", "range"] ]`,
			"text outside quotes": `[ [3, 1, "BAD"x, "4", "range"] ]`,
			"extra quotes":        `[ [3, 1, ""BAD"", "4", "range"] ]`,
			"lone quote":          `[ [3, 1, ", "4", "range"] ]`,
			"group not bracketed": `[ 3, 1, "BAD", "4", "range" ]`,
			"nested group":        `[ [[3, 1, "BAD", "4", "range"]] ]`,
			"missing comma":       `[ [3, 1, "BAD", "4", "range"] [4, 1, "BAD", "4", "range"] ]`,
			"trailing comma":      `[ [3, 1, "BAD", "4", "range"], ]`,
			"unterminated group":  `[ [3, 1, "BAD", "4", "range" ]`,
		}
		for name, text := range cases {
			_, err := Decode(text)
			require.ErrorIs(t, err, dserror.ErrMalformedFlagEntry, name)
		}
	})

	t.Run("malformed entry names the group", func(t *testing.T) {
		t.Parallel()

		_, err := Decode(`[ [3, 1, "BAD", "4", "range"], [9, 1, BAD, "4", "range"] ]`)
		var de *dserror.Error
		require.True(t, errors.As(err, &de))
		require.Equal(t, `[9, 1, BAD, "4", "range"]`, de.Text)
	})
}

func TestIntake_Flags_Encode(t *testing.T) {
	t.Parallel()

	t.Run("empty set", func(t *testing.T) {
		t.Parallel()

		text, err := Encode(Set{})
		require.NoError(t, err)
		require.Equal(t, "[ ]", text)

		s, err := Decode(text)
		require.NoError(t, err)
		require.Equal(t, 0, s.Len())
	})

	t.Run("writes entries in set order", func(t *testing.T) {
		t.Parallel()

		s := NewSet(
			Entry{Row: 4, Column: 2, Severity: SeverityBad, Value: WOCEBad, Name: "parse"},
			Entry{Row: 3, Column: 1, Severity: SeverityBad, Value: WOCEBad, Name: "range"},
		)
		text, err := Encode(s)
		require.NoError(t, err)
		require.Equal(t, `[ [3, 1, "BAD", "4", "range"], [4, 2, "BAD", "4", "parse"] ]`, text)
	})

	t.Run("rejects unrepresentable entries", func(t *testing.T) {
		t.Parallel()

		for _, e := range []Entry{
			{Row: -1, Column: 0},
			{Row: 0, Column: 0, Name: `a"b`},
			{Row: 0, Column: 0, Value: "1,2"},
			{Row: 0, Column: 0, Severity: "[x]"},
		} {
			_, err := Encode(NewSet(e))
			require.ErrorIs(t, err, dserror.ErrMalformedFlagEntry)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		sets := []Set{
			NewSet(Entry{Row: 0, Column: 0, Severity: SeverityAcceptable, Value: WOCEGood, Name: "ok"}),
			NewSet(
				Entry{Row: 10, Column: 3, Severity: SeverityCritical, Value: WOCEMissing, Name: "missing value"},
				Entry{Row: 2, Column: 7, Severity: SeverityQuestionable, Value: WOCEQuestionable, Name: "range"},
				Entry{Row: 2, Column: 7, Severity: SeverityBad, Value: WOCEBad, Name: "range"},
			),
		}
		for _, s := range sets {
			text, err := Encode(s)
			require.NoError(t, err)
			got, err := Decode(text)
			require.NoError(t, err)
			require.True(t, s.Equal(got), "round trip of %s", text)

			again, err := Encode(got)
			require.NoError(t, err)
			require.Equal(t, text, again)
		}
	})
}
