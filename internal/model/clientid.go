package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	localPrefix  = "local:"
	serverPrefix = "server:"
)

var ErrInvalidClientID = errors.New("invalid client id")

// ClientID is the local primary key of a record. It is either Local(token),
// for records the server has never seen, or Remote(id), for records that
// mirror a server task.
type ClientID struct {
	token    string
	serverID int64
}

// LocalID returns the identifier of a local-only record.
func LocalID(token string) ClientID {
	return ClientID{token: token}
}

// NewLocalID returns a fresh local identifier with a random token.
func NewLocalID() ClientID {
	return LocalID(uuid.NewString())
}

// RemoteID returns the identifier of a record mirroring server task id.
func RemoteID(id int64) ClientID {
	return ClientID{serverID: id}
}

// ParseClientID parses the text form produced by String.
func ParseClientID(s string) (ClientID, error) {
	switch {
	case strings.HasPrefix(s, localPrefix):
		token := strings.TrimPrefix(s, localPrefix)
		if token == "" {
			return ClientID{}, fmt.Errorf("%w: %q", ErrInvalidClientID, s)
		}
		return LocalID(token), nil
	case strings.HasPrefix(s, serverPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, serverPrefix), 10, 64)
		if err != nil || id <= 0 {
			return ClientID{}, fmt.Errorf("%w: %q", ErrInvalidClientID, s)
		}
		return RemoteID(id), nil
	default:
		return ClientID{}, fmt.Errorf("%w: %q", ErrInvalidClientID, s)
	}
}

func (c ClientID) IsZero() bool   { return c.token == "" && c.serverID == 0 }
func (c ClientID) IsLocal() bool  { return c.token != "" }
func (c ClientID) IsRemote() bool { return c.serverID != 0 }

// Token returns the local token, empty for remote identifiers.
func (c ClientID) Token() string { return c.token }

// ServerID returns the server id and whether c is a remote identifier.
func (c ClientID) ServerID() (int64, bool) {
	return c.serverID, c.serverID != 0
}

func (c ClientID) String() string {
	switch {
	case c.IsLocal():
		return localPrefix + c.token
	case c.IsRemote():
		return serverPrefix + strconv.FormatInt(c.serverID, 10)
	default:
		return ""
	}
}

func (c ClientID) MarshalText() ([]byte, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidClientID)
	}
	return []byte(c.String()), nil
}

func (c *ClientID) UnmarshalText(b []byte) error {
	id, err := ParseClientID(string(b))
	if err != nil {
		return err
	}
	*c = id
	return nil
}
