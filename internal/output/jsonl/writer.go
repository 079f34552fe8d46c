// Package jsonl 实现套利机器人的 JSONL 落盘。
// 热路径只负责把记录投进通道，JSON 编码与文件 I/O
// 由单个后台 goroutine 串行完成，不阻塞事件循环。
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// fileBufferBytes 文件写缓冲大小
const fileBufferBytes = 1 << 20

type taskKind int

const (
	taskWrite taskKind = iota
	taskFlush
	taskClose
)

type task struct {
	kind   taskKind
	record any
	done   chan error
}

// Writer 单文件异步 JSONL 写入器
// 编码失败或底层写失败的记录被丢弃，不回传热路径。
type Writer struct {
	// tasks 投递通道
	tasks chan task

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	sendMu sync.Mutex
	wg     sync.WaitGroup
}

// NewWriter 创建写入器并启动后台落盘 goroutine
// 参数 path: 输出文件路径（追加模式，目录不存在时自动创建）
// 参数 bufferSize: 投递通道容量，非正数时取 1000
func NewWriter(path string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建落盘目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开落盘文件失败: %w", err)
	}

	w := &Writer{tasks: make(chan task, bufferSize)}
	w.wg.Add(1)
	go w.run(f)
	return w, nil
}

// Write 异步投递一条记录（缓冲满时阻塞）
func (w *Writer) Write(record any) error {
	return w.send(task{kind: taskWrite, record: record})
}

// Flush 把已投递的记录刷到磁盘，已关闭时为空操作
func (w *Writer) Flush() error {
	done := make(chan error, 1)
	if err := w.send(task{kind: taskFlush, done: done}); err != nil {
		return nil
	}
	return <-done
}

// send 持锁投递，与 Close 的通道关闭互斥
func (w *Writer) send(tk task) error {
	if w == nil || w.closed.Load() {
		return fmt.Errorf("jsonl 写入器已关闭")
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.closed.Load() {
		return fmt.Errorf("jsonl 写入器已关闭")
	}
	w.tasks <- tk
	return nil
}

// Close 刷盘并关闭文件（幂等）
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		w.closed.Store(true)
		done := make(chan error, 1)
		w.tasks <- task{kind: taskClose, done: done}
		close(w.tasks)
		w.sendMu.Unlock()
		w.closeErr = <-done
	})
	w.wg.Wait()
	return w.closeErr
}

func (w *Writer) run(f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, fileBufferBytes)
	for tk := range w.tasks {
		switch tk.kind {
		case taskWrite:
			appendLine(bw, tk.record)
		case taskFlush:
			tk.done <- bw.Flush()
		case taskClose:
			tk.done <- bw.Flush()
			return
		}
	}
}

// appendLine 编码一条记录并追加换行，失败的记录直接丢弃
func appendLine(bw *bufio.Writer, record any) {
	b, err := json.Marshal(record)
	if err != nil {
		return
	}
	if _, err := bw.Write(b); err != nil {
		return
	}
	bw.WriteByte('\n')
}
