package crossover

import "fmt"

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*s = SeverityNone
	case "few":
		*s = SeverityFew
	case "many":
		*s = SeverityMany
	default:
		return fmt.Errorf("invalid crossover severity %q", string(b))
	}
	return nil
}
