package archive

import (
	"context"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Putter stores one local file under an object key.
type Putter interface {
	Put(ctx context.Context, key, localPath string) error
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Enqueued      uint64
	Dropped       uint64
	Uploaded      uint64
	Failed        uint64
}

type job struct {
	key  string
	path string
}

// Uploader copies match artifacts in the background. Files are stored as
// <prefix>/<match id>/<file name>.
type Uploader struct {
	put      Putter
	prefix   string
	log      *log.Logger
	attempts int
	backoff  time.Duration

	jobs chan job
	wg   sync.WaitGroup
	once sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
}

func NewUploader(put Putter, prefix string, workers, capacity int, logger *log.Logger) *Uploader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 64
	}
	u := &Uploader{
		put:      put,
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		log:      logger,
		attempts: 4,
		backoff:  200 * time.Millisecond,
		jobs:     make(chan job, capacity),
	}
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			for j := range u.jobs {
				u.upload(j)
			}
		}()
	}
	return u
}

// Key is the object key used for a file of a match.
func (u *Uploader) Key(matchID, localPath string) string {
	k := path.Join(matchID, filepath.Base(localPath))
	if u.prefix != "" {
		k = path.Join(u.prefix, k)
	}
	return k
}

// Enqueue schedules an upload. It never blocks; a full queue drops the file.
func (u *Uploader) Enqueue(matchID, localPath string) bool {
	if u == nil || localPath == "" {
		return false
	}
	u.enqueued.Add(1)
	select {
	case u.jobs <- job{key: u.Key(matchID, localPath), path: localPath}:
		return true
	default:
		n := u.dropped.Add(1)
		u.log.Printf("archive drop %s: queue full (dropped=%d)", localPath, n)
		return false
	}
}

// Close waits for queued uploads to finish.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	u.once.Do(func() { close(u.jobs) })
	u.wg.Wait()
}

func (u *Uploader) Stats() Stats {
	return Stats{
		QueueDepth:    len(u.jobs),
		QueueCapacity: cap(u.jobs),
		Enqueued:      u.enqueued.Load(),
		Dropped:       u.dropped.Load(),
		Uploaded:      u.uploaded.Load(),
		Failed:        u.failed.Load(),
	}
}

func (u *Uploader) upload(j job) {
	var err error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = u.put.Put(ctx, j.key, j.path)
		cancel()
		if err == nil {
			u.uploaded.Add(1)
			u.log.Printf("archived %s as %s", j.path, j.key)
			return
		}
		if attempt < u.attempts {
			time.Sleep(time.Duration(attempt*attempt) * u.backoff)
		}
	}
	u.failed.Add(1)
	u.log.Printf("archive upload failed key=%s: %v", j.key, err)
}
