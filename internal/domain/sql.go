package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonb scanning support for the list types.

// Value implements driver.Valuer.
func (l ErrorList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ErrorList) Scan(src any) error {
	return scanJSON(src, l)
}

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src any) error {
	return scanJSON(src, s)
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into jsonb value", src)
	}
}
