package protocol

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/onelane/internal/bridge"
)

// MaxActorIDLength bounds an actor id, in runes, after normalization.
const MaxActorIDLength = 128

// Command is a validated request.
type Command struct {
	Kind      Kind
	Actor     bridge.ActorID
	Direction bridge.Direction
}

// Validate checks a decoded request and returns its canonical form.
//
// The id is trimmed and NFC-normalized so that visually identical ids
// typed on different systems map to the same actor. Type and direction
// are case-insensitive. Errors are *RequestError.
func Validate(r Request) (Command, error) {
	id := NormalizeID(r.ID)
	if id == "" {
		return Command{}, &RequestError{Field: "id", Message: "required"}
	}
	if utf8.RuneCountInString(id) > MaxActorIDLength {
		return Command{}, &RequestError{Field: "id", Message: "too long"}
	}

	kind := Kind(strings.ToUpper(strings.TrimSpace(string(r.Type))))
	if kind == "" {
		return Command{}, &RequestError{Field: "type", Message: "required"}
	}
	if !kind.IsRequest() {
		return Command{}, &RequestError{Field: "type", Message: "unknown message type " + string(r.Type)}
	}

	if strings.TrimSpace(r.Direction) == "" {
		return Command{}, &RequestError{Field: "direction", Message: "required"}
	}
	dir, err := bridge.ParseDirection(r.Direction)
	if err != nil {
		return Command{}, &RequestError{Field: "direction", Message: "must be left or right"}
	}

	return Command{Kind: kind, Actor: bridge.ActorID(id), Direction: dir}, nil
}

// NormalizeID returns the canonical form of an actor id.
func NormalizeID(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
