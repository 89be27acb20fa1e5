package identity

import "fmt"

// DefaultKind tells where the default user was found.
type DefaultKind int

const (
	// DefaultNone means no default user is set in either slot.
	DefaultNone DefaultKind = iota
	// DefaultLocal means the default is an offline account held in the local slot.
	DefaultLocal
	// DefaultRemote means the default is owned by the remote identity service.
	DefaultRemote
)

func (k DefaultKind) String() string {
	switch k {
	case DefaultNone:
		return "none"
	case DefaultLocal:
		return "local"
	case DefaultRemote:
		return "remote"
	default:
		return fmt.Sprintf("default(%d)", int(k))
	}
}

// Default is the resolved default user.
// ID is empty if and only if Kind is DefaultNone.
type Default struct {
	Kind DefaultKind
	ID   string
}

// IsSet reports whether a default user exists.
func (d Default) IsSet() bool {
	return d.Kind != DefaultNone
}

func (d Default) String() string {
	if d.Kind == DefaultNone {
		return "none"
	}
	return d.Kind.String() + ":" + d.ID
}
