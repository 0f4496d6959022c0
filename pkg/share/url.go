package share

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// Link is a parsed share URL. Key is nil for private shares.
type Link struct {
	ShareID string
	Key     []byte
}

// Public reports whether the link carries a share key.
func (l Link) Public() bool {
	return len(l.Key) > 0
}

// BuildURL returns {base}/{shareID}, with #{base64url(key)} when key is set.
// base may be a path or an absolute URL.
func BuildURL(base, shareID string, key []byte) string {
	u := strings.TrimRight(base, "/") + "/" + shareID
	if len(key) > 0 {
		u += "#" + base64.RawURLEncoding.EncodeToString(key)
	}
	return u
}

// ParseURL is the inverse of BuildURL. The share id is the last path
// segment; query strings are ignored.
func ParseURL(raw string) (Link, error) {
	rest, fragment, hasFragment := strings.Cut(raw, "#")
	rest, _, _ = strings.Cut(rest, "?")

	id := rest[strings.LastIndexByte(rest, '/')+1:]
	if id == "" {
		return Link{}, fmt.Errorf("%w: share URL has no id", qerrors.ErrInvalidMessage)
	}
	link := Link{ShareID: id}
	if !hasFragment {
		return link, nil
	}

	key, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(fragment, "="))
	if err != nil {
		return Link{}, fmt.Errorf("%w: share key is not base64url", qerrors.ErrInvalidMessage)
	}
	if len(key) != constants.SymmetricKeySize {
		return Link{}, fmt.Errorf("%w: share key is %d bytes", qerrors.ErrInvalidMessage, len(key))
	}
	link.Key = key
	return link, nil
}
