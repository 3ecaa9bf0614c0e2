package event

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

var (
	ErrMalformedBody = errors.New("event: malformed body")
	ErrInvalidEvent  = errors.New("event: invalid event")
)

// Body keys.
const (
	keyUser        = "user"
	keyChannel     = "channel name"
	keyCity        = "city"
	keyName        = "event name"
	keyDateTime    = "date time"
	keyGeneralInfo = "general information"
	keyDescription = "description"
)

// Event is one incident report. Values are treated as immutable; WithOwner
// returns a stamped copy.
type Event struct {
	Channel     string
	City        string
	Name        string
	DateTime    int64
	Description string
	GeneralInfo map[string]string
	Owner       string
}

// WithOwner returns a copy of e owned by user.
func (e Event) WithOwner(user string) Event {
	out := e
	out.GeneralInfo = maps.Clone(e.GeneralInfo)
	out.Owner = user
	return out
}

// Summary is the description shortened to 27 characters, with an ellipsis
// when it was cut.
func (e Event) Summary() string {
	const limit = 27
	r := []rune(e.Description)
	if len(r) <= limit {
		return e.Description
	}
	return string(r[:limit]) + "..."
}

// Flag reports whether general information key is "true".
func (e Event) Flag(key string) bool {
	return e.GeneralInfo[key] == "true"
}

func (e Event) Equal(o Event) bool {
	return e.Channel == o.Channel &&
		e.City == o.City &&
		e.Name == o.Name &&
		e.DateTime == o.DateTime &&
		e.Description == o.Description &&
		e.Owner == o.Owner &&
		maps.Equal(e.GeneralInfo, o.GeneralInfo)
}

// Validate rejects events whose fields would not survive EncodeBody and
// ParseBody unchanged. Line fields and general information may not contain a
// newline or start with a space, and general information keys may not contain
// a colon or start with a tab.
func Validate(e Event) error {
	for _, f := range []struct{ name, value string }{
		{"owner", e.Owner},
		{"channel", e.Channel},
		{"city", e.City},
		{"event name", e.Name},
	} {
		if !lineValue(f.value) {
			return fmt.Errorf("%w: %s %q", ErrInvalidEvent, f.name, f.value)
		}
	}
	for k, v := range e.GeneralInfo {
		if !lineValue(k) || strings.ContainsRune(k, ':') || strings.HasPrefix(k, "\t") {
			return fmt.Errorf("%w: general information key %q", ErrInvalidEvent, k)
		}
		if !lineValue(v) {
			return fmt.Errorf("%w: general information %s=%q", ErrInvalidEvent, k, v)
		}
	}
	if strings.ContainsRune(e.Description, 0) {
		return fmt.Errorf("%w: description contains NUL", ErrInvalidEvent)
	}
	return nil
}

func lineValue(v string) bool {
	return !strings.ContainsAny(v, "\n\x00") && !strings.HasPrefix(v, " ")
}

// EncodeBody renders e as a SEND/MESSAGE body. General information is written
// in sorted key order; the description is written raw and runs to the end.
func EncodeBody(e Event) string {
	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	line(keyUser, e.Owner)
	if e.Channel != "" {
		line(keyChannel, e.Channel)
	}
	line(keyCity, e.City)
	line(keyName, e.Name)
	line(keyDateTime, strconv.FormatInt(e.DateTime, 10))
	b.WriteString(keyGeneralInfo + ":\n")
	for _, k := range slices.Sorted(maps.Keys(e.GeneralInfo)) {
		b.WriteByte('\t')
		line(k, e.GeneralInfo[k])
	}
	b.WriteString(keyDescription + ":")
	b.WriteString(e.Description)
	return b.String()
}

// ParseBody reconstructs an Event from a frame body. Lines without a colon and
// unknown keys are ignored. One space after a colon is dropped, so "city: x"
// reads like "city:x". The user line is required and may appear once.
func ParseBody(body string) (Event, error) {
	e := Event{GeneralInfo: make(map[string]string)}
	seenUser := false
	rest := body
	for rest != "" {
		line, next := cutLine(rest)
		key, value, found := strings.Cut(line, ":")
		if !found {
			rest = next
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch key {
		case keyDescription:
			// description: value runs to the end of the body, untouched
			e.Description = rest[len(keyDescription)+1:]
			rest = ""
			continue
		case keyGeneralInfo:
			next = parseGeneralInfo(next, e.GeneralInfo)
		case keyUser:
			if seenUser {
				return Event{}, fmt.Errorf("%w: repeated user", ErrMalformedBody)
			}
			e.Owner = value
			seenUser = true
		case keyChannel:
			e.Channel = value
		case keyCity:
			e.City = value
		case keyName:
			e.Name = value
		case keyDateTime:
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("%w: date time %q", ErrMalformedBody, value)
			}
			e.DateTime = ts
		}
		rest = next
	}
	if !seenUser {
		return Event{}, fmt.Errorf("%w: missing user", ErrMalformedBody)
	}
	return e, nil
}

// parseGeneralInfo consumes indented key:value lines into dst and returns the
// remaining text.
func parseGeneralInfo(rest string, dst map[string]string) string {
	for rest != "" && (rest[0] == '\t' || rest[0] == ' ') {
		line, next := cutLine(rest)
		line = strings.TrimLeft(line, "\t ")
		if k, v, ok := strings.Cut(line, ":"); ok {
			dst[k] = strings.TrimPrefix(v, " ")
		}
		rest = next
	}
	return rest
}

func cutLine(s string) (line, rest string) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
