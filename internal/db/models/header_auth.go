package models

// HeaderAuthKind distinguishes a presented key value from a presented token.
type HeaderAuthKind int

const (
	HeaderAuthKey HeaderAuthKind = iota
	HeaderAuthToken
)

// HeaderAuth is a credential taken from a request header.
type HeaderAuth struct {
	Kind  HeaderAuthKind
	Value string
}

// IsToken reports whether the credential is a token.
func (h *HeaderAuth) IsToken() bool {
	return h.Kind == HeaderAuthToken
}
