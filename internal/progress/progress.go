// Package progress показывает прогресс пакетного расчёта эмбеддингов в терминале.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/artemshloyda/photovault/internal/worker"
)

// Bar - прогресс-бар с ETA и счётчиками результатов.
type Bar struct {
	bar *progressbar.ProgressBar

	// mu защищает счётчики и bar: Observe вызывается из горутин батча.
	mu sync.Mutex

	total     int64
	processed int64
	skipped   int64
	failed    int64

	verbose   bool
	startTime time.Time
	writer    io.Writer
}

// Options - настройки прогресс-бара.
type Options struct {
	// Total - количество задач.
	Total int64

	// Description - подпись слева от бара.
	Description string

	// Disabled - не рисовать бар, только считать.
	Disabled bool

	// Verbose - печатать строку на каждую ошибку.
	Verbose bool

	// Writer - куда выводить (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт прогресс-бар.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	b := &Bar{
		total:     opts.Total,
		verbose:   opts.Verbose,
		startTime: time.Now(),
		writer:    writer,
	}

	if opts.Disabled || opts.Total <= 0 {
		return b
	}

	description := opts.Description
	if description == "" {
		description = "Эмбеддинги"
	}

	b.bar = progressbar.NewOptions64(
		opts.Total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("фото"),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]▓[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(writer)
		}),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	return b
}

// Observe учитывает результат задачи очереди эмбеддингов.
// Подходит для worker.WithObserver.
func (b *Bar) Observe(r worker.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.Err != nil {
		b.failed++
		if b.verbose {
			b.printLocked("❌ %d (%s): %v\n", r.Job.ImageID, r.Job.SourcePath, r.Err)
		}
	} else {
		b.processed++
	}
	b.addLocked()
}

// IncrementSkipped учитывает пропущенное изображение.
func (b *Bar) IncrementSkipped() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.skipped++
	b.addLocked()
}

func (b *Bar) addLocked() {
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// Finish дорисовывает бар до конца.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Stats возвращает счётчики.
func (b *Bar) Stats() (processed, skipped, failed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processed, b.skipped, b.failed
}

// Done возвращает количество учтённых задач.
func (b *Bar) Done() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processed + b.skipped + b.failed
}

// Duration возвращает время с момента создания.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.startTime)
}

// WriteMessage выводит сообщение, временно скрывая бар.
func (b *Bar) WriteMessage(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.printLocked(format, args...)
}

func (b *Bar) printLocked(format string, args ...any) {
	if b.bar != nil {
		_ = b.bar.Clear()
	}
	fmt.Fprintf(b.writer, format, args...)
	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}
