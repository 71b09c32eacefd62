package annotation

import "errors"

var (
	// ErrInvalidTarget: no line is focused, or the focused line does not exist.
	ErrInvalidTarget = errors.New("pick a line first")
	// ErrForbidden: only the author may edit or delete an annotation.
	ErrForbidden = errors.New("only the author can change this comment")
	// ErrEmptyBody: the body is blank after trimming.
	ErrEmptyBody = errors.New("comment body is empty")
	// ErrNotFound: no annotation with that id.
	ErrNotFound = errors.New("comment not found")
)
