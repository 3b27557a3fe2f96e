package plugin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bool is a bool for plugin config attributes that additionally unmarshals
// from JSON strings like "y", "no" or "true".
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	switch v := value.(type) {
	case bool:
		*b = Bool(v)
	case string:
		parsed, err := parseBoolString(v)
		if err != nil {
			return err
		}

		*b = Bool(parsed)
	default:
		return fmt.Errorf("cannot unmarshal %T into Bool", value)
	}

	return nil
}

func parseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}

	return strconv.ParseBool(s)
}
