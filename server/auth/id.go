package auth

import (
	"strconv"

	"github.com/pkg/errors"
)

func formatUserID(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

func parseUserID(subject string) (int32, error) {
	id, err := strconv.ParseInt(subject, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid user id %q", subject)
	}
	return int32(id), nil
}
