package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/artemshloyda/photovault/internal/queue"
	"github.com/artemshloyda/photovault/internal/worker"
)

func TestBar_Observe(t *testing.T) {
	var buf bytes.Buffer
	b := New(Options{Total: 4, Disabled: true, Verbose: true, Writer: &buf})

	var wg sync.WaitGroup
	for i := int64(1); i <= 3; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			b.Observe(worker.Result{Job: queue.Job{ImageID: id}})
		}(i)
	}
	wg.Wait()
	b.Observe(worker.Result{Job: queue.Job{ImageID: 9, SourcePath: "/data/9.jpg"}, Err: errors.New("timeout")})

	processed, skipped, failed := b.Stats()
	if processed != 3 || skipped != 0 || failed != 1 {
		t.Errorf("Stats() = %d/%d/%d, want 3/0/1", processed, skipped, failed)
	}
	if b.Done() != 4 {
		t.Errorf("Done() = %d, want 4", b.Done())
	}
	if !strings.Contains(buf.String(), "/data/9.jpg") {
		t.Errorf("verbose output = %q, want failed path", buf.String())
	}
}

func TestBar_Rendered(t *testing.T) {
	var buf bytes.Buffer
	b := New(Options{Total: 2, Writer: &buf})
	b.Observe(worker.Result{})
	b.IncrementSkipped()
	b.Finish()

	if buf.Len() == 0 {
		t.Error("bar wrote nothing")
	}
	if _, skipped, _ := b.Stats(); skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}
