// Package collections provides the growable containers that hold the agent
// population: a fixed-increment dynamic array and a hash index built from it.
package collections

import "errors"

var (
	// ErrInvalidCapacity is returned when a container is created with a
	// non-positive capacity or growth increment.
	ErrInvalidCapacity = errors.New("invalid capacity")

	// ErrOutOfRange is returned for positional access outside the filled range.
	ErrOutOfRange = errors.New("index out of range")

	// ErrNilItem is returned when a nil item is offered to a container.
	ErrNilItem = errors.New("nil item")

	// ErrNilIndex is returned when an operation is invoked on a nil index.
	ErrNilIndex = errors.New("nil index")
)

// Ownership states whether a container releases its items when destroyed.
type Ownership uint8

const (
	Owning    Ownership = iota // Destroy calls the release hook on every item
	Borrowing                  // Destroy only drops references
)

// DefaultIncrement is the number of slots added whenever an array is full.
const DefaultIncrement = 8

// DynamicArray is an ordered sequence of items that grows by a fixed
// increment rather than doubling. Slots past the filled range are always
// zero values.
type DynamicArray[T any] struct {
	data      []T
	filled    int
	increment int
	ownership Ownership
	release   func(T)
}

// NewDynamicArray creates a borrowing array with the given initial capacity.
func NewDynamicArray[T any](capacity, increment int) (*DynamicArray[T], error) {
	if capacity <= 0 || increment <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &DynamicArray[T]{
		data:      make([]T, capacity),
		increment: increment,
		ownership: Borrowing,
	}, nil
}

// NewOwningArray creates an array that hands every item to release when
// Destroy is called.
func NewOwningArray[T any](capacity, increment int, release func(T)) (*DynamicArray[T], error) {
	a, err := NewDynamicArray[T](capacity, increment)
	if err != nil {
		return nil, err
	}
	a.ownership = Owning
	a.release = release
	return a, nil
}

// Len returns the number of filled slots.
func (a *DynamicArray[T]) Len() int {
	if a == nil {
		return 0
	}
	return a.filled
}

// Cap returns the number of allocated slots.
func (a *DynamicArray[T]) Cap() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

// Ownership reports whether the array owns its items.
func (a *DynamicArray[T]) Ownership() Ownership {
	if a == nil {
		return Borrowing
	}
	return a.ownership
}

// Append adds item at the end, growing the backing storage by the fixed
// increment when full.
func (a *DynamicArray[T]) Append(item T) error {
	if a == nil {
		return ErrNilIndex
	}
	if a.filled == len(a.data) {
		a.expand()
	}
	a.data[a.filled] = item
	a.filled++
	return nil
}

func (a *DynamicArray[T]) expand() {
	grown := make([]T, len(a.data)+a.increment)
	copy(grown, a.data[:a.filled])
	a.data = grown
}

// Get returns the item at index, or false when index is outside [0, Len()).
func (a *DynamicArray[T]) Get(index int) (T, bool) {
	var zero T
	if a == nil || index < 0 || index >= a.filled {
		return zero, false
	}
	return a.data[index], true
}

// Set overwrites the item at index.
func (a *DynamicArray[T]) Set(index int, item T) bool {
	if a == nil || index < 0 || index >= a.filled {
		return false
	}
	a.data[index] = item
	return true
}

// RemoveAt removes the item at index, shifting every later item left by one.
func (a *DynamicArray[T]) RemoveAt(index int) (T, bool) {
	var zero T
	if a == nil || index < 0 || index >= a.filled {
		return zero, false
	}
	item := a.data[index]
	copy(a.data[index:a.filled-1], a.data[index+1:a.filled])
	a.filled--
	a.data[a.filled] = zero
	return item, true
}

// Each calls fn for every filled slot in order until fn returns false.
func (a *DynamicArray[T]) Each(fn func(int, T) bool) {
	if a == nil {
		return
	}
	for i := 0; i < a.filled; i++ {
		if !fn(i, a.data[i]) {
			return
		}
	}
}

// Destroy releases the contained items (owning arrays only) and the backing
// storage, leaving an empty array.
func (a *DynamicArray[T]) Destroy() {
	if a == nil {
		return
	}
	if a.ownership == Owning && a.release != nil {
		for i := 0; i < a.filled; i++ {
			a.release(a.data[i])
		}
	}
	a.data = nil
	a.filled = 0
}
