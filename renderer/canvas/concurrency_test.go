package canvasrenderer

import (
	"bytes"
	"sync"
	"testing"
)

// 并发调用互不干扰：每次调用独占画布与字体面，结果与串行一致。
func TestRenderConcurrentCallers(t *testing.T) {
	r := NewRenderer(".")
	bg := newBackground(360, 240)
	style := helloStyle()
	style.OutlineWidth = 1

	want, err := r.Render("concurrent caption", bg, style)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	outs := make([][]byte, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = r.Render("concurrent caption", bg, style)
		}(i)
	}
	wg.Wait()
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error: %v", i, errs[i])
		}
		if !bytes.Equal(outs[i], want) {
			t.Fatalf("worker %d output differs from serial render", i)
		}
	}
}
