package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixUser  = "user"
	PrefixFloor = "floor"
	PrefixSpace = "space"
	PrefixEdit  = "edit"
	PrefixLoad  = "load"
	PrefixConn  = "conn"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewUserID() string  { return New(PrefixUser) }
func NewFloorID() string { return New(PrefixFloor) }
func NewSpaceID() string { return New(PrefixSpace) }
func NewEditID() string  { return New(PrefixEdit) }
func NewLoadID() string  { return New(PrefixLoad) }
func NewConnID() string  { return New(PrefixConn) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
