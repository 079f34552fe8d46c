// Package jsonl 输出模块测试
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"go.uber.org/zap"
)

// solutionLine 测试用的落盘记录结构
type solutionLine struct {
	CycleID   string   `json:"cycle_id"`
	Path      []string `json:"path"`
	Profit    float64  `json:"profit"`
	ProfitUSD float64  `json:"profit_usd"`
}

// readLines 读取 JSONL 文件的全部行
func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开输出文件失败: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("读取输出文件失败: %v", err)
	}
	return lines
}

// TestWriter_WriteFlushRead 测试写入后 flush 可读回完整记录
func TestWriter_WriteFlushRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solutions.jsonl")
	w, err := NewWriter(path, 16)
	if err != nil {
		t.Fatalf("创建写入器失败: %v", err)
	}

	want := solutionLine{
		CycleID:   "c-1",
		Path:      []string{"IOT", "USD", "ETH", "IOT"},
		Profit:    2.2953,
		ProfitUSD: 1.1006,
	}
	if err := w.Write(want); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush 失败: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("行数 = %d, want 1", len(lines))
	}
	var got solutionLine
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("解析记录失败: %v", err)
	}
	if got.CycleID != want.CycleID || got.Profit != want.Profit {
		t.Errorf("记录不一致: got %+v, want %+v", got, want)
	}

	if err := w.Close(); err != nil {
		t.Errorf("关闭失败: %v", err)
	}
}

// TestWriter_CloseFlushes 测试关闭时自动 flush
func TestWriter_CloseFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")
	w, err := NewWriter(path, 16)
	if err != nil {
		t.Fatalf("创建写入器失败: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := w.Write(map[string]int{"seq": i}); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}

	if got := len(readLines(t, path)); got != 5 {
		t.Errorf("行数 = %d, want 5", got)
	}
}

// TestWriter_WriteAfterClose 测试关闭后写入返回错误
func TestWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := NewWriter(path, 16)
	if err != nil {
		t.Fatalf("创建写入器失败: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if err := w.Write(map[string]int{"seq": 1}); err == nil {
		t.Error("关闭后写入应返回错误")
	}
	// 重复关闭是空操作
	if err := w.Close(); err != nil {
		t.Errorf("重复关闭应为空操作: %v", err)
	}
}

// TestWriter_LineCount_Property 属性: 写入 N 条记录，文件恰有 N 行且每行均为合法 JSON
func TestWriter_LineCount_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("写入 N 条记录得到 N 行合法 JSON", prop.ForAll(
		func(n int) bool {
			path := filepath.Join(t.TempDir(), "prop.jsonl")
			w, err := NewWriter(path, 8)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				if err := w.Write(solutionLine{CycleID: "c", Profit: float64(i)}); err != nil {
					return false
				}
			}
			if err := w.Close(); err != nil {
				return false
			}

			lines := readLines(t, path)
			if len(lines) != n {
				return false
			}
			for _, line := range lines {
				var v solutionLine
				if err := json.Unmarshal([]byte(line), &v); err != nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

// TestSink_DisabledIsNoop 测试未启用的出口写入为空操作
func TestSink_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir, false, true, 16, zap.NewNop())
	if err != nil {
		t.Fatalf("创建 Sink 失败: %v", err)
	}

	s.WriteBookSnapshot(map[string]int{"seq": 1}) // 未启用，应静默丢弃
	s.WriteSolution(solutionLine{CycleID: "c-1"})
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, "books.jsonl")); !os.IsNotExist(err) {
		t.Error("未启用订单簿快照时不应创建 books.jsonl")
	}
	if got := len(readLines(t, filepath.Join(dir, "solutions.jsonl"))); got != 1 {
		t.Errorf("solutions.jsonl 行数 = %d, want 1", got)
	}
}
