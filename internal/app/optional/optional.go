// Package optional carries tri-state patch fields between adapters and services.
package optional

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// ApplyPtr returns the pointer field after the patch: unchanged when unspecified,
// nil when null, a fresh pointer to the value otherwise.
func ApplyPtr[T any](o Optional[T], current *T) *T {
	switch {
	case !o.IsSpecified():
		return current
	case o.IsNull():
		return nil
	default:
		v := o.Value()
		return &v
	}
}
