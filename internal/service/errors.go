package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("not allowed to modify resource")
	ErrNoComments         = errors.New("no comments found for this post")
	ErrInvalidCredentials = errors.New("incorrect username or password")
)

// ValidationError carries per-field messages, keyed by the request field name.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// errOrNil lets callers build a ValidationError unconditionally and return it only when populated.
func (e *ValidationError) errOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}
