package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

type IngestionConfig struct {
	Workers      int
	QueueSize    int
	BatchSize    int
	MaxFileSize  int64
	AllowedTypes []string // extensions including the dot, e.g. ".pdf"
}

// UploadedFile is one file of an upload request. EmployeeID, when set, is
// stored on every chunk for hybrid correlation.
type UploadedFile struct {
	Filename   string
	Data       []byte
	EmployeeID string
}

type ingestTask struct {
	job   *domain.IngestionJob
	files []UploadedFile
}

const watcherBuffer = 16

// IngestionService turns uploaded files into embedded chunks on a bounded
// pool of workers and tracks each upload as a job.
type IngestionService struct {
	extractor port.TextExtractor
	embedder  port.Embedder
	store     port.VectorStore
	jobs      port.JobStore
	cfg       IngestionConfig
	logger    *slog.Logger

	queue  chan ingestTask
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	active   map[string]*domain.IngestionJob
	watchers map[string][]chan *domain.IngestionJob
}

func NewIngestionService(extractor port.TextExtractor, embedder port.Embedder, store port.VectorStore, jobs port.JobStore, cfg IngestionConfig, logger *slog.Logger) *IngestionService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &IngestionService{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan ingestTask, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*domain.IngestionJob),
		watchers:  make(map[string][]chan *domain.IngestionJob),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Submit validates files and queues them as one job. Nothing is queued when
// any file is rejected.
func (s *IngestionService) Submit(ctx context.Context, files []UploadedFile) (*domain.IngestionJob, error) {
	if err := s.validate(files); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, domain.Errorf(domain.KindPoolExhausted, "ingestion is shutting down")
	}

	now := time.Now().UTC()
	job := &domain.IngestionJob{
		ID:         uuid.NewString(),
		Status:     domain.JobQueued,
		TotalFiles: len(files),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, f := range files {
		job.Documents = append(job.Documents, domain.JobDocument{
			DocumentID: uuid.NewString(),
			Filename:   f.Filename,
			FileType:   strings.TrimPrefix(strings.ToLower(path.Ext(f.Filename)), "."),
			Status:     domain.FilePending,
			EmployeeID: f.EmployeeID,
		})
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("saving ingestion job: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.Errorf(domain.KindPoolExhausted, "ingestion is shutting down")
	}
	s.active[job.ID] = job.Clone()
	select {
	case s.queue <- ingestTask{job: job, files: files}:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.finish(job, domain.JobFailed, "ingestion queue is full")
		return nil, domain.Errorf(domain.KindPoolExhausted, "ingestion queue is full, retry later")
	}

	s.logger.InfoContext(ctx, "ingestion job queued",
		slog.String("job_id", job.ID),
		slog.Int("files", job.TotalFiles),
	)
	return job.Clone(), nil
}

func (s *IngestionService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *IngestionService) validate(files []UploadedFile) error {
	if len(files) == 0 {
		return domain.Errorf(domain.KindInvalidInput, "no files uploaded")
	}
	for _, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			return domain.Errorf(domain.KindInvalidInput, "file name must not be empty")
		}
		ext := strings.ToLower(path.Ext(f.Filename))
		if !s.allowed(ext) {
			return domain.Errorf(domain.KindInvalidInput, "file %q: type %q is not accepted (allowed: %s)",
				f.Filename, ext, strings.Join(s.cfg.AllowedTypes, ", "))
		}
		if len(f.Data) == 0 {
			return domain.Errorf(domain.KindInvalidInput, "file %q is empty", f.Filename)
		}
		if s.cfg.MaxFileSize > 0 && int64(len(f.Data)) > s.cfg.MaxFileSize {
			return domain.Errorf(domain.KindInvalidInput, "file %q is %d bytes, the limit is %d",
				f.Filename, len(f.Data), s.cfg.MaxFileSize)
		}
	}
	return nil
}

func (s *IngestionService) allowed(ext string) bool {
	for _, a := range s.cfg.AllowedTypes {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// Get returns the stored state of a job.
func (s *IngestionService) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	return s.jobs.Get(ctx, id)
}

// Watch streams snapshots of job id, starting with the current one. The
// channel is closed after a terminal state. stop unsubscribes early.
func (s *IngestionService) Watch(ctx context.Context, id string) (updates <-chan *domain.IngestionJob, stop func(), err error) {
	s.mu.Lock()
	if cur, ok := s.active[id]; ok {
		ch := make(chan *domain.IngestionJob, watcherBuffer)
		ch <- cur.Clone()
		s.watchers[id] = append(s.watchers[id], ch)
		s.mu.Unlock()
		return ch, func() { s.unwatch(id, ch) }, nil
	}
	s.mu.Unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan *domain.IngestionJob, 1)
	ch <- job
	close(ch)
	return ch, func() {}, nil
}

func (s *IngestionService) unwatch(id string, ch chan *domain.IngestionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[id]
	for i, c := range list {
		if c == ch {
			s.watchers[id] = append(list[:i], list[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close stops accepting jobs, fails jobs still queued and waits for workers.
func (s *IngestionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *IngestionService) worker() {
	defer s.wg.Done()
	for task := range s.queue {
		s.run(task)
	}
}

func (s *IngestionService) run(task ingestTask) {
	job := task.job
	if s.ctx.Err() != nil {
		s.finish(job, domain.JobFailed, "ingestion aborted")
		return
	}

	start := time.Now()
	s.transition(job, domain.JobProcessing)

	for i, f := range task.files {
		if s.ctx.Err() != nil {
			s.finish(job, domain.JobFailed, "ingestion aborted")
			return
		}
		doc := &job.Documents[i]
		fileType, chunks, err := s.ingestFile(s.ctx, doc, f)
		if fileType != "" {
			doc.FileType = fileType
		}
		if err != nil {
			doc.Status = domain.FileFailed
			doc.Error = err.Error()
			job.FailedFiles++
			s.logger.Warn("document ingestion failed",
				slog.String("job_id", job.ID),
				slog.String("filename", f.Filename),
				slog.String("error", err.Error()),
			)
		} else {
			doc.Status = domain.FileProcessed
			doc.Chunks = chunks
			job.ProcessedFiles++
		}
		s.publish(job)
	}

	if job.FailedFiles == job.TotalFiles {
		s.finish(job, domain.JobFailed, "no file could be ingested")
	} else {
		s.finish(job, domain.JobCompleted, "")
	}
	s.logger.Info("ingestion job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.Int("processed", job.ProcessedFiles),
		slog.Int("failed", job.FailedFiles),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *IngestionService) ingestFile(ctx context.Context, doc *domain.JobDocument, f UploadedFile) (string, int, error) {
	text, fileType, err := s.extractor.Extract(ctx, f.Filename, f.Data)
	if err != nil {
		return "", 0, fmt.Errorf("extracting text: %w", err)
	}
	chunks := domain.ChunkText(text, domain.ChunkSpecFor(fileType))
	if len(chunks) == 0 {
		return fileType, 0, fmt.Errorf("no text found in %s", f.Filename)
	}

	for lo := 0; lo < len(chunks); lo += s.cfg.BatchSize {
		hi := min(lo+s.cfg.BatchSize, len(chunks))
		batch := chunks[lo:hi]

		vectors, err := s.embedder.Embed(ctx, batch)
		if err != nil {
			return fileType, 0, fmt.Errorf("embedding chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return fileType, 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		records := make([]port.ChunkRecord, len(batch))
		for i, content := range batch {
			idx := lo + i
			records[i] = port.ChunkRecord{
				ID:      fmt.Sprintf("%s-%d", doc.DocumentID, idx),
				Vector:  vectors[i],
				Content: content,
				Source: domain.SourceMetadata{
					DocumentID: doc.DocumentID,
					Filename:   f.Filename,
					FileType:   fileType,
					ChunkIndex: idx,
					EmployeeID: f.EmployeeID,
				},
			}
		}
		if err := s.store.Upsert(ctx, records); err != nil {
			return fileType, 0, fmt.Errorf("storing chunks: %w", err)
		}
	}
	return fileType, len(chunks), nil
}

func (s *IngestionService) transition(job *domain.IngestionJob, to domain.JobStatus) bool {
	if !domain.CanTransition(job.Status, to) {
		s.logger.Error("illegal job transition",
			slog.String("job_id", job.ID),
			slog.String("from", string(job.Status)),
			slog.String("to", string(to)),
		)
		return false
	}
	job.Status = to
	s.publish(job)
	return true
}

func (s *IngestionService) finish(job *domain.IngestionJob, to domain.JobStatus, reason string) {
	job.Error = reason
	s.transition(job, to)
}

// publish stores a snapshot of job and hands it to watchers. Terminal
// snapshots close the watchers.
func (s *IngestionService) publish(job *domain.IngestionJob) {
	job.UpdatedAt = time.Now().UTC()
	snap := job.Clone()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.Save(ctx, snap); err != nil {
		s.logger.Error("saving ingestion job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	terminal := snap.Status.Terminal()
	for _, ch := range s.watchers[job.ID] {
		offer(ch, snap.Clone(), terminal)
		if terminal {
			close(ch)
		}
	}
	if terminal {
		delete(s.watchers, job.ID)
		delete(s.active, job.ID)
	} else {
		s.active[job.ID] = snap
	}
}

// offer sends without blocking. When must is set and the buffer is full the
// oldest pending snapshot is dropped to make room.
func offer(ch chan *domain.IngestionJob, job *domain.IngestionJob, must bool) {
	select {
	case ch <- job:
		return
	default:
	}
	if !must {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- job:
	default:
	}
}
