package mpmc

import (
	"context"
	"runtime"
	"smarthub/internal/global"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint64
		wantErr  bool
	}{
		{"power of two", 16, false},
		{"minimum", 2, false},
		{"too small", 1, true},
		{"not power of two", 12, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[int]([]string{global.NSTest}, tt.capacity, 2, 64, 8)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for capacity %d, got nil", tt.capacity)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestQueue_PushTryPop(t *testing.T) {
	queue, err := New[int]([]string{global.NSTest}, 4, 2, 64, 8)
	if err != nil {
		t.Fatalf("expected no error creating queue, got %v", err)
	}

	if _, ok := queue.TryPop(); ok {
		t.Fatalf("expected empty queue to return false")
	}

	for i := 0; i < 4; i++ {
		if !queue.Push(i) {
			t.Fatalf("expected push %d to succeed", i)
		}
	}
	if queue.Push(99) {
		t.Fatalf("expected push into full queue to fail")
	}
	if got := queue.ActiveWrite.Load().Metrics.PushFull.Load(); got != 1 {
		t.Fatalf("expected 1 rejected push, got %d", got)
	}
	if got := queue.Len(); got != 4 {
		t.Fatalf("expected length 4, got %d", got)
	}

	for i := 0; i < 4; i++ {
		v, ok := queue.TryPop()
		if !ok || v != i {
			t.Fatalf("expected (%d, true), got (%d, %v)", i, v, ok)
		}
	}
	if got := queue.Len(); got != 0 {
		t.Fatalf("expected length 0 after draining, got %d", got)
	}
}

func TestQueue_Drain(t *testing.T) {
	queue, err := New[string]([]string{global.NSTest}, 8, 2, 64, 8)
	if err != nil {
		t.Fatalf("expected no error creating queue, got %v", err)
	}
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		queue.Push(s)
	}

	first := queue.Drain(2)
	if len(first) != 2 || first[0] != "a" || first[1] != "b" {
		t.Fatalf("expected [a b], got %v", first)
	}
	rest := queue.Drain(0)
	if len(rest) != 3 || rest[2] != "e" {
		t.Fatalf("expected remaining 3 items ending with e, got %v", rest)
	}
}

func TestQueue_Concurrency(t *testing.T) {
	tests := []struct {
		name      string
		capacity  uint64
		producers int
		perProd   int
	}{
		{"single producer", 128, 1, 1000},
		{"high contention", 16, 8, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue, err := New[int]([]string{global.NSTest}, tt.capacity, 2, global.DefaultMaxQueueSize, 8)
			if err != nil {
				t.Fatalf("expected no error creating queue, got %v", err)
			}

			var wg sync.WaitGroup
			for p := 0; p < tt.producers; p++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < tt.perProd; j++ {
						for !queue.Push(j) {
							runtime.Gosched()
						}
					}
				}()
			}

			want := tt.producers * tt.perProd
			got := 0
			for got < want {
				if _, ok := queue.TryPop(); ok {
					got++
					continue
				}
				runtime.Gosched()
			}
			wg.Wait()

			if _, ok := queue.TryPop(); ok {
				t.Fatalf("expected queue to be empty after consuming %d items", want)
			}
		})
	}
}

func TestQueue_ResizeKeepsItems(t *testing.T) {
	ctx := context.Background()
	queue, err := New[int]([]string{global.NSTest}, 4, 2, 16, 8)
	if err != nil {
		t.Fatalf("expected no error creating queue, got %v", err)
	}

	for i := 0; i < 4; i++ {
		queue.Push(i)
	}

	if got := queue.ScaleCapacity(ctx, true, false); got != 8 {
		t.Fatalf("expected capacity 8 after scale up, got %d", got)
	}

	// New writes land in the new instance, old items are read first
	for i := 4; i < 10; i++ {
		if !queue.Push(i) {
			t.Fatalf("expected push %d into grown queue to succeed", i)
		}
	}
	if got := queue.Len(); got != 10 {
		t.Fatalf("expected 10 items across both instances, got %d", got)
	}

	for i := 0; i < 10; i++ {
		v, ok := queue.TryPop()
		if !ok || v != i {
			t.Fatalf("expected (%d, true), got (%d, %v)", i, v, ok)
		}
	}
	if queue.ActiveRead.Load() != queue.ActiveWrite.Load() {
		t.Fatalf("expected read view to migrate to the new instance")
	}

	// Second resize while idle shrinks back
	if got := queue.ScaleCapacity(ctx, false, true); got != 4 {
		t.Fatalf("expected capacity 4 after scale down, got %d", got)
	}
}

func TestQueue_ScaleBounds(t *testing.T) {
	ctx := context.Background()
	queue, err := New[int]([]string{global.NSTest}, 4, 4, 4, 8)
	if err != nil {
		t.Fatalf("expected no error creating queue, got %v", err)
	}

	if got := queue.ScaleCapacity(ctx, true, false); got != 4 {
		t.Fatalf("expected capacity to stay at maximum 4, got %d", got)
	}
	if got := queue.ScaleCapacity(ctx, false, true); got != 4 {
		t.Fatalf("expected capacity to stay at minimum 4, got %d", got)
	}
}

func TestQueue_CollectMetrics(t *testing.T) {
	queue, err := New[int]([]string{global.NSHub}, 4, 2, 16, 8)
	if err != nil {
		t.Fatalf("expected no error creating queue, got %v", err)
	}
	for i := 0; i < 5; i++ {
		queue.Push(i)
	}
	queue.TryPop()

	values := make(map[string]uint64)
	for _, m := range queue.CollectMetrics(0) {
		values[m.Name] = m.Value.Raw
		if len(m.Namespace) != 2 || m.Namespace[1] != global.NSQueue {
			t.Fatalf("unexpected namespace %v", m.Namespace)
		}
	}

	want := map[string]uint64{"depth": 3, "capacity": 4, "high_water": 4, "push_success": 4, "push_full": 1, "pop_success": 1}
	for name, v := range want {
		if values[name] != v {
			t.Fatalf("metric %s: expected %d, got %d", name, v, values[name])
		}
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name      string
		values    []uint64
		queueSize int
		wantUp    bool
		wantDown  bool
	}{
		{"rising above high watermark", []uint64{40, 50, 60, 75}, 100, true, false},
		{"rising but inconsistent", []uint64{40, 50, 49, 75}, 100, false, false},
		{"rising below watermark", []uint64{10, 20, 30, 40}, 100, false, false},
		{"falling below low watermark", []uint64{20, 18, 10, 5}, 100, false, true},
		{"falling above watermark", []uint64{80, 60, 50, 40}, 100, false, false},
		{"flat", []uint64{90, 90, 90, 90}, 100, false, false},
		{"too few samples", []uint64{10, 90}, 100, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, down := Trend(tt.values, tt.queueSize)
			if up != tt.wantUp || down != tt.wantDown {
				t.Fatalf("expected up=%v down=%v, got up=%v down=%v", tt.wantUp, tt.wantDown, up, down)
			}
		})
	}
}
