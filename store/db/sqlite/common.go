package sqlite

import "strings"

func joinWhere(where []string) string {
	return strings.Join(where, " AND ")
}
