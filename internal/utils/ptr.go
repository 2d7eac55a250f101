// Package utils holds small generic helpers shared across packages.
package utils

// Ptr returns a pointer to v. Handy for optional fields such as a
// window's reset instant.
func Ptr[T any](v T) *T {
	return &v
}
