package bot

import (
	"errors"
	"strconv"
	"strings"
)

// verifyPrefix tags callback data carrying a verification action.
const verifyPrefix = "verify_"

var ErrBadToken = errors.New("malformed verify token")

// VerifyToken encodes the callback data for a verification button targeting
// the given user.
func VerifyToken(userID int64) string {
	return verifyPrefix + strconv.FormatInt(userID, 10)
}

// ParseVerifyToken is the inverse of VerifyToken. Anything that does not
// decode to a positive user id is ErrBadToken.
func ParseVerifyToken(data string) (int64, error) {
	raw, ok := strings.CutPrefix(data, verifyPrefix)
	if !ok {
		return 0, ErrBadToken
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadToken
	}
	return id, nil
}
