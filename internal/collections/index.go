package collections

// Keyed is implemented by items stored in an Index. The key must be stable
// for the lifetime of the item; it decides the bucket on insert and rehash.
// IsNil must report true for a nil pointer without dereferencing it.
type Keyed interface {
	Key() int64
	IsNil() bool
}

const (
	// DefaultResizeThreshold is the bucket fill that triggers a rehash.
	DefaultResizeThreshold = 1000

	// ResizeFactor multiplies the bucket count on every rehash.
	ResizeFactor = 4

	bucketCapacity = 5
)

// Index is a hash table of DynamicArray buckets keyed by Key() modulo the
// bucket count. Items are addressed positionally by (bucket, slot) so callers
// can iterate and remove in a single pass.
type Index[T Keyed] struct {
	buckets   []*DynamicArray[T]
	total     int
	threshold int
	resizes   int
}

// NewIndex creates an index with bucketCount buckets (at least 1).
func NewIndex[T Keyed](bucketCount int) (*Index[T], error) {
	if bucketCount <= 0 {
		bucketCount = 1
	}
	buckets, err := makeBuckets[T](bucketCount)
	if err != nil {
		return nil, err
	}
	return &Index[T]{
		buckets:   buckets,
		threshold: DefaultResizeThreshold,
	}, nil
}

// SetResizeThreshold changes the per-bucket fill that triggers a rehash.
func (x *Index[T]) SetResizeThreshold(n int) {
	if x != nil && n > 0 {
		x.threshold = n
	}
}

func makeBuckets[T Keyed](n int) ([]*DynamicArray[T], error) {
	buckets := make([]*DynamicArray[T], n)
	for i := range buckets {
		b, err := NewDynamicArray[T](bucketCapacity, DefaultIncrement)
		if err != nil {
			return nil, err
		}
		buckets[i] = b
	}
	return buckets, nil
}

func bucketFor(key int64, n int) int {
	b := key % int64(n)
	if b < 0 {
		b = -b
	}
	return int(b)
}

// Len returns the total number of items across all buckets.
func (x *Index[T]) Len() int {
	if x == nil {
		return 0
	}
	return x.total
}

// BucketCount returns the current number of buckets.
func (x *Index[T]) BucketCount() int {
	if x == nil {
		return 0
	}
	return len(x.buckets)
}

// BucketLen returns the fill of bucket b, or 0 when b is out of range.
func (x *Index[T]) BucketLen(b int) int {
	if x == nil || b < 0 || b >= len(x.buckets) {
		return 0
	}
	return x.buckets[b].Len()
}

// Resizes returns how many times the table has been rehashed.
func (x *Index[T]) Resizes() int {
	if x == nil {
		return 0
	}
	return x.resizes
}

// Add appends item to its bucket. A bucket pushed past the resize threshold
// triggers a rehash into ResizeFactor times as many buckets.
func (x *Index[T]) Add(item T) error {
	if x == nil {
		return ErrNilIndex
	}
	if item.IsNil() {
		return ErrNilItem
	}
	b := bucketFor(item.Key(), len(x.buckets))
	if err := x.buckets[b].Append(item); err != nil {
		return err
	}
	x.total++

	if x.buckets[b].Len() > x.threshold {
		return x.resize(len(x.buckets) * ResizeFactor)
	}
	return nil
}

// resize rehashes every item into n fresh buckets. The old table stays in
// place until the new one is complete.
func (x *Index[T]) resize(n int) error {
	buckets, err := makeBuckets[T](n)
	if err != nil {
		return err
	}
	for _, old := range x.buckets {
		for i := 0; i < old.Len(); i++ {
			item, _ := old.Get(i)
			if err := buckets[bucketFor(item.Key(), n)].Append(item); err != nil {
				return err
			}
		}
	}
	for _, old := range x.buckets {
		old.Destroy()
	}
	x.buckets = buckets
	x.resizes++
	return nil
}

// Get returns the item at (bucket, slot).
func (x *Index[T]) Get(bucket, slot int) (T, bool) {
	var zero T
	if x == nil || bucket < 0 || bucket >= len(x.buckets) {
		return zero, false
	}
	return x.buckets[bucket].Get(slot)
}

// RemoveAt removes and returns the item at (bucket, slot). Later items in the
// same bucket shift down by one slot.
func (x *Index[T]) RemoveAt(bucket, slot int) (T, error) {
	var zero T
	if x == nil {
		return zero, ErrNilIndex
	}
	if bucket < 0 || bucket >= len(x.buckets) {
		return zero, ErrOutOfRange
	}
	item, ok := x.buckets[bucket].RemoveAt(slot)
	if !ok {
		return zero, ErrOutOfRange
	}
	x.total--
	return item, nil
}

// Find returns the item with the given key by scanning its bucket.
func (x *Index[T]) Find(key int64) (T, bool) {
	var zero T
	if x == nil {
		return zero, false
	}
	bucket := x.buckets[bucketFor(key, len(x.buckets))]
	for i := 0; i < bucket.Len(); i++ {
		item, _ := bucket.Get(i)
		if item.Key() == key {
			return item, true
		}
	}
	return zero, false
}

// Each visits items in bucket then slot order until fn returns false.
// fn must not add or remove items.
func (x *Index[T]) Each(fn func(T) bool) {
	if x == nil {
		return
	}
	for _, bucket := range x.buckets {
		for i := 0; i < bucket.Len(); i++ {
			item, _ := bucket.Get(i)
			if !fn(item) {
				return
			}
		}
	}
}

// Destroy drops every bucket. The bucket count is kept so the index can be
// refilled without rehashing from scratch.
func (x *Index[T]) Destroy() {
	if x == nil {
		return
	}
	for _, b := range x.buckets {
		b.Destroy()
	}
	x.total = 0
}
