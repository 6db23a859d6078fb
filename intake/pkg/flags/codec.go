package flags

import (
	"strconv"
	"strings"

	"github.com/oceanco2/intake/intake/pkg/dserror"
)

const reservedChars = "\",[]"

// Encode writes the set in its text form. Entries with negative indices, or with text fields
// containing quotes, commas or brackets, cannot be represented and fail with MalformedFlagEntry.
func Encode(s Set) (string, error) {
	if len(s.entries) == 0 {
		return "[ ]", nil
	}

	var b strings.Builder
	b.WriteString("[ ")
	for i, e := range s.entries {
		if err := validateEntry(e); err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(e.Row))
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(e.Column))
		b.WriteString(`, "`)
		b.WriteString(e.Severity)
		b.WriteString(`", "`)
		b.WriteString(e.Value)
		b.WriteString(`", "`)
		b.WriteString(e.Name)
		b.WriteString(`"]`)
	}
	b.WriteString(" ]")
	return b.String(), nil
}

func validateEntry(e Entry) error {
	if e.Row < 0 || e.Column < 0 {
		return dserror.New(dserror.KindMalformedFlagEntry, "negative index in entry %v", e)
	}
	for _, field := range []string{e.Severity, e.Value, e.Name} {
		if strings.ContainsAny(field, reservedChars) {
			return &dserror.Error{
				Kind: dserror.KindMalformedFlagEntry,
				Row:  dserror.NoRow,
				Text: field,
				Msg:  "field contains a reserved character",
			}
		}
	}
	return nil
}

// Decode parses the text form of a flag set. An empty list decodes to an empty set.
func Decode(text string) (Set, error) {
	t := strings.TrimSpace(text)
	if len(t) < 2 || t[0] != '[' || t[len(t)-1] != ']' {
		return Set{}, &dserror.Error{
			Kind: dserror.KindMalformedFlagSet,
			Row:  dserror.NoRow,
			Text: text,
			Msg:  "flag set must start with '[' and end with ']'",
		}
	}

	rest := strings.TrimSpace(t[1 : len(t)-1])
	var entries []Entry
	for rest != "" {
		if rest[0] != '[' {
			return Set{}, malformedGroup(rest, "expected '['")
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Set{}, malformedGroup(rest, "unterminated group")
		}
		group := rest[:end+1]
		e, err := decodeEntry(group)
		if err != nil {
			return Set{}, err
		}
		entries = append(entries, e)

		rest = strings.TrimSpace(rest[end+1:])
		if rest == "" {
			break
		}
		if rest[0] != ',' {
			return Set{}, malformedGroup(group, "unexpected text after group")
		}
		rest = strings.TrimSpace(rest[1:])
		if rest == "" {
			return Set{}, malformedGroup(group, "trailing comma after group")
		}
	}
	return NewSet(entries...), nil
}

func decodeEntry(group string) (Entry, error) {
	body := group[1 : len(group)-1]
	if strings.ContainsRune(body, '[') {
		return Entry{}, malformedGroup(group, "nested group")
	}
	fields := strings.Split(body, ",")
	if len(fields) != 5 {
		return Entry{}, malformedGroup(group, "expected 5 fields, got "+strconv.Itoa(len(fields)))
	}

	row, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || row < 0 {
		return Entry{}, malformedGroup(group, "invalid row index")
	}
	col, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || col < 0 {
		return Entry{}, malformedGroup(group, "invalid column index")
	}

	var quoted [3]string
	for i := range quoted {
		v, ok := unquote(fields[i+2])
		if !ok {
			return Entry{}, malformedGroup(group, "field "+strconv.Itoa(i+3)+" must be wrapped in one pair of double quotes")
		}
		quoted[i] = v
	}

	return Entry{
		Row:      row,
		Column:   col,
		Severity: quoted[0],
		Value:    quoted[1],
		Name:     quoted[2],
	}, nil
}

func unquote(field string) (string, bool) {
	f := strings.TrimSpace(field)
	if len(f) < 2 || f[0] != '"' || f[len(f)-1] != '"' {
		return "", false
	}
	inner := f[1 : len(f)-1]
	if strings.ContainsRune(inner, '"') {
		return "", false
	}
	return inner, true
}

func malformedGroup(group, msg string) error {
	return &dserror.Error{
		Kind: dserror.KindMalformedFlagEntry,
		Row:  dserror.NoRow,
		Text: group,
		Msg:  msg,
	}
}
