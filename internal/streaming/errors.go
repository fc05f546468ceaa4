package streaming

import "errors"

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("streaming manager closed")

// textureNotFoundError signals an unknown texture name or asset.
type textureNotFoundError struct{ name string }

func (e textureNotFoundError) Error() string { return "texture not found: " + e.name }

// ErrTextureNotFound returns an error for a texture the streamer does not track.
func ErrTextureNotFound(name string) error { return textureNotFoundError{name: name} }

// IsTextureNotFound reports whether the error indicates a missing texture.
func IsTextureNotFound(err error) bool {
	_, ok := err.(textureNotFoundError)
	return ok
}

type levelNotFoundError struct{ id string }

func (e levelNotFoundError) Error() string { return "level not found: " + e.id }

// ErrLevelNotFound returns an error for an unregistered level id.
func ErrLevelNotFound(id string) error { return levelNotFoundError{id: id} }

// IsLevelNotFound reports whether the error indicates a missing level.
func IsLevelNotFound(err error) bool {
	_, ok := err.(levelNotFoundError)
	return ok
}

// invalidArgumentError maps to 400 in the HTTP layer.
type invalidArgumentError struct{ msg string }

func (e invalidArgumentError) Error() string { return e.msg }

func ErrInvalidArgument(msg string) error { return invalidArgumentError{msg: msg} }

// IsInvalidArgument reports whether err was caused by a bad caller argument.
func IsInvalidArgument(err error) bool {
	_, ok := err.(invalidArgumentError)
	return ok
}
