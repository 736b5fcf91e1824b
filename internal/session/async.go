package session

import "sync"

// AsyncSession 用有界工作池包装会话，把阻塞的资源操作变成 future。
// 阻塞语义不变：future 的 Wait 等价于直接调用对应的同步方法。
type AsyncSession struct {
	s     *Session
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewAsyncSession 以 workers 个固定工作协程包装会话。
func NewAsyncSession(s *Session, workers int) *AsyncSession {
	if workers <= 0 {
		workers = 4
	}
	a := &AsyncSession{
		s:     s,
		tasks: make(chan func(), workers*2),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for task := range a.tasks {
				task()
			}
		}()
	}
	return a
}

// ReadFuture 承载一次异步读取的结果。
type ReadFuture struct {
	done chan struct{}
	data []byte
	err  error
}

// Wait 阻塞到读取完成。
func (f *ReadFuture) Wait() ([]byte, error) {
	<-f.done
	return f.data, f.err
}

// WriteFuture 承载一次异步写入的结果。
type WriteFuture struct {
	done chan struct{}
	err  error
}

// Wait 阻塞到写入完成。
func (f *WriteFuture) Wait() error {
	<-f.done
	return f.err
}

// BoolFuture 承载一次异步存在性判断的结果。
type BoolFuture struct {
	done chan struct{}
	ok   bool
}

// Wait 阻塞到判断完成。
func (f *BoolFuture) Wait() bool {
	<-f.done
	return f.ok
}

// ReadResource 异步读取资源。
func (a *AsyncSession) ReadResource(p string) *ReadFuture {
	f := &ReadFuture{done: make(chan struct{})}
	a.tasks <- func() {
		f.data, f.err = a.s.ReadResource(p)
		close(f.done)
	}
	return f
}

// WriteResource 异步写入资源。
func (a *AsyncSession) WriteResource(p string, data []byte) *WriteFuture {
	f := &WriteFuture{done: make(chan struct{})}
	a.tasks <- func() {
		f.err = a.s.WriteResource(p, data)
		close(f.done)
	}
	return f
}

// ResourceExists 异步判断资源是否存在。
func (a *AsyncSession) ResourceExists(p string) *BoolFuture {
	f := &BoolFuture{done: make(chan struct{})}
	a.tasks <- func() {
		f.ok = a.s.ResourceExists(p)
		close(f.done)
	}
	return f
}

// Shutdown 停止接收新任务并等待在途任务结束。不关闭底层会话。
func (a *AsyncSession) Shutdown() {
	a.once.Do(func() { close(a.tasks) })
	a.wg.Wait()
}
