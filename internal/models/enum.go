package models

import "fmt"

type enum interface {
	~string
	Valid() bool
}

// parseEnum rejects values outside the closed set so unknown shapes fail at decode time.
func parseEnum[T enum](dst *T, b []byte, what string) error {
	v := T(b)
	if !v.Valid() {
		return fmt.Errorf("invalid %s %q", what, string(b))
	}
	*dst = v
	return nil
}
