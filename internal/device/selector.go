package device

import "fmt"

// Selector identifies a peripheral by advertised name or hardware address.
// At least one field must be set; when both are set the address wins.
type Selector struct {
	Name string // advertised local name, matched exactly
	ID   string // hardware address / platform device ID, matched case-insensitively
}

// IsZero reports whether the selector carries no identity at all.
func (s Selector) IsZero() bool {
	return s.Name == "" && s.ID == ""
}

func (s Selector) String() string {
	switch {
	case s.ID != "" && s.Name != "":
		return fmt.Sprintf("%s (%s)", s.Name, s.ID)
	case s.ID != "":
		return s.ID
	default:
		return s.Name
	}
}
