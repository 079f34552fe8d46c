package jsonl

import (
	"path/filepath"

	"go.uber.org/zap"
)

// Sink 机器人的落盘出口
// 管理两个 JSONL 文件：订单簿周期快照与套利求解结果。
// 未启用的文件对应的写入调用是空操作。
type Sink struct {
	// books 订单簿快照写入器，未启用时为 nil
	books *Writer
	// solutions 套利方案写入器，未启用时为 nil
	solutions *Writer
	// logger 日志记录器
	logger *zap.Logger
}

// NewSink 创建落盘出口
// 参数 dir: 输出目录
// 参数 booksEnabled: 是否落盘订单簿快照（books.jsonl）
// 参数 solutionsEnabled: 是否落盘套利方案（solutions.jsonl）
// 参数 bufferSize: 异步写入缓冲区大小
func NewSink(dir string, booksEnabled, solutionsEnabled bool, bufferSize int, logger *zap.Logger) (*Sink, error) {
	s := &Sink{logger: logger.Named("jsonl")}

	if booksEnabled {
		w, err := NewWriter(filepath.Join(dir, "books.jsonl"), bufferSize)
		if err != nil {
			return nil, err
		}
		s.books = w
	}
	if solutionsEnabled {
		w, err := NewWriter(filepath.Join(dir, "solutions.jsonl"), bufferSize)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.solutions = w
	}
	return s, nil
}

// WriteBookSnapshot 落盘一条订单簿快照记录
func (s *Sink) WriteBookSnapshot(rec any) {
	if s.books == nil {
		return
	}
	if err := s.books.Write(rec); err != nil {
		s.logger.Warn("写入订单簿快照失败", zap.Error(err))
	}
}

// WriteSolution 落盘一条套利方案记录
func (s *Sink) WriteSolution(rec any) {
	if s.solutions == nil {
		return
	}
	if err := s.solutions.Write(rec); err != nil {
		s.logger.Warn("写入套利方案失败", zap.Error(err))
	}
}

// Close 关闭全部写入器（会先 flush）
func (s *Sink) Close() {
	if s.books != nil {
		if err := s.books.Close(); err != nil {
			s.logger.Warn("关闭订单簿快照写入器失败", zap.Error(err))
		}
		s.books = nil
	}
	if s.solutions != nil {
		if err := s.solutions.Close(); err != nil {
			s.logger.Warn("关闭套利方案写入器失败", zap.Error(err))
		}
		s.solutions = nil
	}
}
