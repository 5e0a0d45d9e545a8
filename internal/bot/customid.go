package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Component actions used as custom ID prefixes on panel buttons.
const (
	actionToggle        = "toggle"
	actionDelete        = "delete"
	actionDeleteConfirm = "delete_confirm"
	actionNoop          = "noop"
)

// FormatCustomID builds the "action:id" custom ID carried by a panel
// component.
func FormatCustomID(action string, id int64) string {
	return fmt.Sprintf("%s:%d", action, id)
}

// ParseCustomID splits an "action:id" component custom ID.
func ParseCustomID(s string) (action string, id int64, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed custom id %q", s)
	}
	id, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid id in custom id %q", s)
	}
	return parts[0], id, nil
}
