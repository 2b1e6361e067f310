package server

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// A TokenDecoder turns the API key sent with a request into a user and a
// role. An unknown key gives the user "" with RoleUnknown. An error means
// the key could not be checked at all.
type TokenDecoder interface {
	TokenDecode(token string) (user string, role Role, err error)
}

// Role is what a user may do. Each role includes the ones below it.
type Role int

const (
	RoleUnknown Role = iota
	RoleRead         // read entries and terrain state
	RoleBuild        // run builds and import ops
	RoleAdmin
)

func atoRole(s string) Role {
	switch strings.ToLower(s) {
	case "read":
		return RoleRead
	case "build":
		return RoleBuild
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// NewNobodyDecoder returns a TokenDecoder which accepts any key as the user
// "nobody" with RoleAdmin. It is for development only.
func NewNobodyDecoder() TokenDecoder {
	return nobodyDecoder{}
}

type nobodyDecoder struct{}

func (nobodyDecoder) TokenDecode(token string) (string, Role, error) {
	return "nobody", RoleAdmin, nil
}

// NewListDecoder reads a user list from r. Each line has the form
//
//	<user name>  <role>  <token>
//
// separated by spaces or tabs. The role is "read", "build" or "admin" in
// any case. Blank lines, lines starting with '#' and lines with the wrong
// number of fields are skipped. When a token appears twice the last line
// wins.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	d := listDecoder{users: make(map[string]userEntry)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 || fields[0][0] == '#' {
			continue
		}
		d.users[fields[2]] = userEntry{user: fields[0], role: atoRole(fields[1])}
	}
	return d, scanner.Err()
}

// NewListDecoderFile reads a user list from the file fname.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewListDecoder(f)
}

type userEntry struct {
	user string
	role Role
}

type listDecoder struct {
	users map[string]userEntry // keyed by token
}

func (ld listDecoder) TokenDecode(token string) (string, Role, error) {
	if u, ok := ld.users[token]; ok && token != "" {
		return u.user, u.role, nil
	}
	return "", RoleUnknown, nil
}
