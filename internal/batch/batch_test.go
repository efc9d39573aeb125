package batch

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestProcess_EquivalentToSinglePass(t *testing.T) {
	// Batching must never change the result, whatever the chunk size.
	records := ints(17)
	sum := func(chunk []int) (int, error) {
		total := 0
		for _, v := range chunk {
			total += v
		}
		return total, nil
	}
	combine := func(a, b int) int { return a + b }

	want, err := sum(records)
	if err != nil {
		t.Fatal(err)
	}

	for batchSize := 1; batchSize <= len(records)+5; batchSize++ {
		t.Run(fmt.Sprintf("size_%d", batchSize), func(t *testing.T) {
			got, err := Process(records, batchSize, sum, combine)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got != want {
				t.Errorf("Process(size=%d) = %d, want %d", batchSize, got, want)
			}
		})
	}
}

func TestProcess_PreservesOrder(t *testing.T) {
	records := ints(10)
	got, err := Append(records, 3, func(chunk []int) ([]int, error) {
		out := make([]int, len(chunk))
		copy(out, chunk)
		return out, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("Append() reordered input: %v", got)
	}
}

func TestProcess_EmptyInput(t *testing.T) {
	called := false
	got, err := Process(nil, 5, func(chunk []int) (int, error) {
		called = true
		return 0, nil
	}, func(a, b int) int { return a + b })
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got != 0 {
		t.Errorf("Process(empty) = %d, want zero value", got)
	}
	if called {
		t.Error("transform must not be invoked for empty input")
	}
}

func TestProcess_InvalidBatchSize(t *testing.T) {
	for _, size := range []int{0, -1, -100} {
		_, err := Process(ints(3), size, func(chunk []int) (int, error) { return 0, nil }, func(a, b int) int { return 0 })
		if !errors.Is(err, ErrInvalidBatchSize) {
			t.Errorf("Process(size=%d) error = %v, want ErrInvalidBatchSize", size, err)
		}
	}
}

func TestProcess_TransformErrorAborts(t *testing.T) {
	boom := errors.New("bad record")
	calls := 0
	_, err := Process(ints(10), 3, func(chunk []int) (int, error) {
		calls++
		if calls == 2 {
			return 0, boom
		}
		return 0, nil
	}, func(a, b int) int { return a + b })

	if !errors.Is(err, boom) {
		t.Fatalf("Process() error = %v, want wrapped %v", err, boom)
	}
	// Must abort on the failing chunk, not continue over the rest.
	if calls != 2 {
		t.Errorf("transform called %d times, want 2", calls)
	}
}

func TestSumInt64(t *testing.T) {
	type rec struct{ cents int64 }
	records := []rec{{45000}, {32000}, {28000}}

	got, err := SumInt64(records, 2, func(r rec) (int64, error) { return r.cents, nil })
	if err != nil {
		t.Fatal(err)
	}
	if got != 105000 {
		t.Errorf("SumInt64() = %d, want 105000", got)
	}
}

func TestSumInt64_ValueError(t *testing.T) {
	boom := errors.New("negative amount")
	_, err := SumInt64([]int{1, -2, 3}, 1, func(v int) (int64, error) {
		if v < 0 {
			return 0, boom
		}
		return int64(v), nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("SumInt64() error = %v, want %v", err, boom)
	}
}
