package service

// ItemFailure pairs an item with the error that prevented its write.
type ItemFailure[T any] struct {
	Item   T      `json:"item"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// BatchResult is the outcome of applying a write to every item of a batch.
// A failing item never stops the ones after it.
type BatchResult[T any] struct {
	Succeeded []T              `json:"succeeded"`
	Failed    []ItemFailure[T] `json:"failed"`
}

// Fold runs write over items in order, collecting successes and failures.
// write receives a pointer so it may fill generated fields before the item is
// recorded.
func Fold[T any](items []T, write func(*T) error) BatchResult[T] {
	result := BatchResult[T]{
		Succeeded: make([]T, 0, len(items)),
		Failed:    []ItemFailure[T]{},
	}
	for i := range items {
		item := items[i]
		if err := write(&item); err != nil {
			result.Failed = append(result.Failed, ItemFailure[T]{Item: item, Reason: err.Error(), Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, item)
	}
	return result
}

// Complete reports whether every item was written.
func (b BatchResult[T]) Complete() bool {
	return len(b.Failed) == 0
}
