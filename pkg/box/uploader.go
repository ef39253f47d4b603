package box

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jdollar/box-go/internal/files"
)

// UploadStatus is the state of a ChunkedUploader.
//
//	Created -> Uploading -> Committing -> Committed | Failed
//	Created, Uploading -> Aborted
type UploadStatus int

const (
	UploadCreated UploadStatus = iota
	UploadUploading
	UploadCommitting
	UploadCommitted
	UploadAborted
	UploadFailed
)

var uploadStatusNames = [...]string{"created", "uploading", "committing", "committed", "aborted", "failed"}

func (s UploadStatus) String() string {
	if int(s) < len(uploadStatusNames) {
		return uploadStatusNames[s]
	}
	return "unknown"
}

const defaultParallelism = 4

// Progress is reported after each acknowledged part.
type Progress struct {
	Part          UploadPart
	PartsUploaded int
	TotalParts    int
	BytesUploaded int64
	TotalBytes    int64
}

type UploaderOptions struct {
	// Parallelism bounds concurrent part uploads. Defaults to 4.
	Parallelism int
	// Attributes are sent with the commit (content_modified_at,
	// description, ...).
	Attributes map[string]interface{}
	// Progress, when set, is called after every uploaded part. Calls are
	// serialized.
	Progress func(Progress)
	Logger   logrus.FieldLogger
}

// ChunkedUploader uploads a file through an upload session: the content is
// split into the session's part size, parts are uploaded in parallel, and
// the session is committed once every byte is covered.
//
// A failed part does not abort the session. Start returns a *PartError and
// can be called again to upload the missing parts, or Abort discards the
// session.
type ChunkedUploader struct {
	sessions *UploadSessionsManager
	session  UploadSession
	content  io.ReaderAt
	size     int64
	plan     []files.FilePart
	opts     UploaderOptions
	log      logrus.FieldLogger

	mu       sync.Mutex
	status   UploadStatus
	uploaded map[int]UploadPart
	cancel   context.CancelFunc

	progressMu sync.Mutex
}

// Uploader attaches a ChunkedUploader to an existing session.
func (m *UploadSessionsManager) Uploader(session *UploadSession, content io.ReaderAt, size int64, opts UploaderOptions) (*ChunkedUploader, error) {
	plan, err := files.PlanParts(size, session.PartSize)
	if err != nil {
		return nil, fmt.Errorf("box: plan upload session %s: %w", session.ID, err)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = m.client.log
	}
	return &ChunkedUploader{
		sessions: m,
		session:  *session,
		content:  content,
		size:     size,
		plan:     plan,
		opts:     opts,
		log:      opts.Logger.WithField("session_id", session.ID),
		uploaded: make(map[int]UploadPart, len(plan)),
	}, nil
}

func (u *ChunkedUploader) Session() UploadSession {
	return u.session
}

func (u *ChunkedUploader) Status() UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// NumParts is the number of parts the content is split into.
func (u *ChunkedUploader) NumParts() int {
	return len(u.plan)
}

// Parts returns the acknowledged parts ordered by offset.
func (u *ChunkedUploader) Parts() []UploadPart {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.partsLocked()
}

func (u *ChunkedUploader) partsLocked() []UploadPart {
	parts := make([]UploadPart, 0, len(u.uploaded))
	for _, p := range u.uploaded {
		parts = append(parts, p)
	}
	sort.Sort(byOffset(parts))
	return parts
}

// Start uploads every part not yet acknowledged and commits the session.
func (u *ChunkedUploader) Start(ctx context.Context) (*File, error) {
	u.mu.Lock()
	if u.status != UploadCreated && u.status != UploadUploading {
		status := u.status
		u.mu.Unlock()
		if status == UploadAborted {
			return nil, ErrUploadAborted
		}
		return nil, fmt.Errorf("%w: start while %s", ErrInvalidState, status)
	}
	u.status = UploadUploading
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.mu.Unlock()
	defer cancel()

	if err := u.uploadMissing(ctx); err != nil {
		if u.Status() == UploadAborted {
			return nil, ErrUploadAborted
		}
		return nil, err
	}
	file, err := u.Commit(ctx)
	if err != nil && u.Status() == UploadAborted {
		return nil, ErrUploadAborted
	}
	return file, err
}

func (u *ChunkedUploader) uploadMissing(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(u.opts.Parallelism)

	for _, part := range u.plan {
		u.mu.Lock()
		_, done := u.uploaded[part.Index]
		u.mu.Unlock()
		if done {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		part := part
		g.Go(func() error {
			_, err := u.upload(ctx, part)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// UploadPart uploads part number index (0 based) on its own, for instance to
// retry a part that failed.
func (u *ChunkedUploader) UploadPart(ctx context.Context, index int) (*UploadPart, error) {
	if index < 0 || index >= len(u.plan) {
		return nil, fmt.Errorf("box: part %d out of range [0, %d)", index, len(u.plan))
	}
	u.mu.Lock()
	if u.status != UploadCreated && u.status != UploadUploading {
		status := u.status
		u.mu.Unlock()
		return nil, fmt.Errorf("%w: upload part while %s", ErrInvalidState, status)
	}
	u.status = UploadUploading
	u.mu.Unlock()

	return u.upload(ctx, u.plan[index])
}

func (u *ChunkedUploader) upload(ctx context.Context, part files.FilePart) (*UploadPart, error) {
	partErr := func(err error) error {
		return &PartError{Index: part.Index, Begin: part.Begin, End: part.End, Err: err}
	}

	part, err := files.ReadPart(u.content, part)
	if err != nil {
		return nil, partErr(err)
	}

	u.log.WithFields(logrus.Fields{
		"part":  part.Index,
		"begin": part.Begin,
		"end":   part.End,
	}).Debug("Uploading part")

	uploaded, err := u.sessions.uploadPart(ctx, u.session.ID, part.Data, part.Digest, part.Begin, u.size)
	if err != nil {
		u.log.WithFields(logrus.Fields{
			"part": part.Index,
			"err":  err,
		}).Warn("Part upload failed")
		return nil, partErr(err)
	}

	// Callbacks run one at a time and see increasing totals.
	u.progressMu.Lock()
	defer u.progressMu.Unlock()

	u.mu.Lock()
	u.uploaded[part.Index] = *uploaded
	progress := Progress{
		Part:          *uploaded,
		PartsUploaded: len(u.uploaded),
		TotalParts:    len(u.plan),
		TotalBytes:    u.size,
	}
	for _, p := range u.uploaded {
		progress.BytesUploaded += p.Size
	}
	u.mu.Unlock()

	if u.opts.Progress != nil {
		u.opts.Progress(progress)
	}
	return uploaded, nil
}

// Commit commits the session once the acknowledged parts cover the whole
// content. It fails with ErrIncompleteUpload, leaving the uploader usable,
// when they do not.
func (u *ChunkedUploader) Commit(ctx context.Context) (*File, error) {
	u.mu.Lock()
	if u.status != UploadUploading && u.status != UploadCreated {
		status := u.status
		u.mu.Unlock()
		return nil, fmt.Errorf("%w: commit while %s", ErrInvalidState, status)
	}
	parts := u.partsLocked()
	if err := validateParts(u.size, parts); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	u.status = UploadCommitting
	u.mu.Unlock()

	file, err := u.commit(ctx, parts)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.status = UploadFailed
		u.log.WithField("err", err).Error("Commit failed")
		return nil, err
	}
	u.status = UploadCommitted
	u.log.WithField("file_id", file.ID).Info("Upload committed")
	return file, nil
}

func (u *ChunkedUploader) commit(ctx context.Context, parts []UploadPart) (*File, error) {
	digest, err := files.Digest(u.content, u.size)
	if err != nil {
		return nil, fmt.Errorf("box: digest upload content: %w", err)
	}
	return u.sessions.Commit(ctx, u.session.ID, digest, parts, u.opts.Attributes)
}

// Abort stops uploads in flight and deletes the session. It is only valid
// before the commit starts.
func (u *ChunkedUploader) Abort(ctx context.Context) error {
	u.mu.Lock()
	if u.status != UploadCreated && u.status != UploadUploading {
		status := u.status
		u.mu.Unlock()
		return fmt.Errorf("%w: abort while %s", ErrInvalidState, status)
	}
	u.status = UploadAborted
	cancel := u.cancel
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	u.log.Info("Aborting upload session")
	return u.sessions.Abort(ctx, u.session.ID)
}

// validateParts checks that parts tile [0, size).
func validateParts(size int64, parts []UploadPart) error {
	ranges := make([]files.FilePart, len(parts))
	for i, p := range parts {
		ranges[i] = files.FilePart{Index: i, Begin: p.Offset, End: p.Offset + p.Size - 1}
	}
	if err := files.ValidateTiling(size, ranges); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompleteUpload, err)
	}
	return nil
}
