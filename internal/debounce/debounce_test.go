package debounce_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drummonds/pdfshelf/internal/debounce"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer(t *testing.T) {
	t.Run("burst invokes once with last argument test", func(t *testing.T) {
		rec := &recorder{}
		d := debounce.New(rec.record, 50*time.Millisecond)

		for _, q := range []string{"m", "ma", "man", "manual"} {
			d.Call(q)
			time.Sleep(5 * time.Millisecond)
		}

		assert.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, []string{"manual"}, rec.get())
	})

	t.Run("separate bursts invoke separately test", func(t *testing.T) {
		rec := &recorder{}
		d := debounce.New(rec.record, 10*time.Millisecond)

		d.Call("a")
		assert.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 2*time.Millisecond)
		d.Call("b")
		assert.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 2*time.Millisecond)
		assert.Equal(t, []string{"a", "b"}, rec.get())
	})

	t.Run("flush test", func(t *testing.T) {
		rec := &recorder{}
		d := debounce.New(rec.record, time.Hour)

		d.Call("now")
		d.Flush()
		assert.Equal(t, []string{"now"}, rec.get())

		// Nothing pending: no call.
		d.Flush()
		assert.Len(t, rec.get(), 1)
	})

	t.Run("stop test", func(t *testing.T) {
		rec := &recorder{}
		d := debounce.New(rec.record, 10*time.Millisecond)

		d.Call("dropped")
		d.Stop()
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, rec.get())
	})
}
