package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/leadflow/internal/logging"
	"github.com/google/uuid"
)

// Service errors not tied to a single transition.
var (
	ErrMissingTenant   = errors.New("missing tenant id")
	ErrTooManySessions = errors.New("too many open import sessions")
)

// Service defaults.
const (
	DefaultMaxSessions   = 1000
	DefaultSessionTTL    = time.Hour
	DefaultCommitTimeout = 2 * time.Minute
)

// Options configures a Service. Zero values fall back to the defaults.
type Options struct {
	MaxFileSize     int64
	MaxRows         int
	MaxSessions     int
	SessionTTL      time.Duration
	PreviewRowLimit int
	Defaults        CommitDefaults

	MaxConcurrentCommits int
	CommitWaitTime       time.Duration
	CommitTimeout        time.Duration

	// Campaigns verifies campaign ids before commit. When nil the gateway
	// is used if it implements CampaignChecker; otherwise ids are not
	// checked.
	Campaigns CampaignChecker

	// Audit records finished commits. Defaults to the gateway when it
	// implements AuditLog.
	Audit AuditLog

	// Templates stores saved mappings. Defaults to the gateway when it
	// implements TemplateStore.
	Templates TemplateStore

	Now   func() time.Time
	NewID func() string
}

// Service owns the import sessions of every tenant and runs their
// transitions.
type Service struct {
	gateway   Gateway
	campaigns CampaignChecker
	audit     AuditLog
	templates TemplateStore
	limiter   *CommitLimiter
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// sessionEntry serializes transitions of one session. Readers load the
// current snapshot without taking mu.
type sessionEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[ImportSession]
}

func (e *sessionEntry) load() ImportSession {
	return *e.snap.Load()
}

func (e *sessionEntry) store(s ImportSession) {
	e.snap.Store(&s)
}

// NewService creates a Service that commits through gw.
func NewService(gw Gateway, opts Options) (*Service, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}

	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.PreviewRowLimit <= 0 {
		opts.PreviewRowLimit = DefaultPreviewRowLimit
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = DefaultCommitTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	campaigns := opts.Campaigns
	if campaigns == nil {
		campaigns, _ = gw.(CampaignChecker)
	}
	audit := opts.Audit
	if audit == nil {
		audit, _ = gw.(AuditLog)
	}
	templates := opts.Templates
	if templates == nil {
		templates, _ = gw.(TemplateStore)
	}

	return &Service{
		gateway:   gw,
		campaigns: campaigns,
		audit:     audit,
		templates: templates,
		limiter:   NewCommitLimiter(opts.MaxConcurrentCommits, opts.CommitWaitTime),
		opts:      opts,
		sessions:  make(map[string]*sessionEntry),
	}, nil
}

// Fields returns the canonical lead fields.
func (s *Service) Fields() []FieldSpec {
	return Fields()
}

// PreviewRowLimit returns the configured preview cap.
func (s *Service) PreviewRowLimit() int {
	return s.opts.PreviewRowLimit
}

// CreateSession opens an empty session in the upload stage. campaignID may
// be nil.
func (s *Service) CreateSession(ctx context.Context, tenantID string, campaignID *uuid.UUID) (ImportSession, error) {
	if tenantID == "" {
		return ImportSession{}, ErrMissingTenant
	}

	sess := NewSession(s.opts.NewID(), tenantID, s.opts.Now())
	if campaignID != nil {
		id := *campaignID
		sess.CampaignID = &id
	}

	e := &sessionEntry{}
	e.store(sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.opts.MaxSessions {
		return ImportSession{}, ErrTooManySessions
	}
	s.sessions[sess.ID] = e

	logging.FromContext(ctx).Debug("import session created", "session_id", sess.ID, "tenant_id", tenantID)
	return sess, nil
}

// StartImport creates a session and uploads the file into it. On a parse
// failure the session is kept in the upload stage and returned together
// with the *ParseError.
func (s *Service) StartImport(ctx context.Context, tenantID, fileName string, r io.Reader, campaignID *uuid.UUID) (ImportSession, error) {
	sess, err := s.CreateSession(ctx, tenantID, campaignID)
	if err != nil {
		return ImportSession{}, err
	}
	return s.Upload(ctx, sess.ID, tenantID, fileName, r)
}

func (s *Service) lookup(id, tenantID string) (*sessionEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()

	// Another tenant's session is reported as missing.
	if !ok || e.load().TenantID != tenantID {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// transition applies fn under the session lock and stores its result when
// fn succeeds.
func (s *Service) transition(id, tenantID string, fn func(ImportSession) (ImportSession, error)) (ImportSession, error) {
	e, err := s.lookup(id, tenantID)
	if err != nil {
		return ImportSession{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.load()
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	e.store(next)
	return next, nil
}

// Get returns the current snapshot of a session.
func (s *Service) Get(ctx context.Context, id, tenantID string) (ImportSession, error) {
	e, err := s.lookup(id, tenantID)
	if err != nil {
		return ImportSession{}, err
	}
	return e.load(), nil
}

// Upload parses a file into a session in the upload stage and moves it to
// mapping with the detected column mapping.
func (s *Service) Upload(ctx context.Context, id, tenantID, fileName string, r io.Reader) (ImportSession, error) {
	e, err := s.lookup(id, tenantID)
	if err != nil {
		return ImportSession{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.load()
	if err := cur.requireStage(StageUpload); err != nil {
		return cur, err
	}

	log := logging.WithFields(ctx, "session_id", id, "tenant_id", tenantID, "file", fileName)

	pf, err := ParseFile(fileName, r, ParseOptions{MaxBytes: s.opts.MaxFileSize, MaxRows: s.opts.MaxRows})
	if err != nil {
		log.Warn("upload rejected", "error", err)
		failed, terr := cur.WithUploadError(fileName, FormatUserError(err), s.opts.Now())
		if terr != nil {
			return cur, terr
		}
		e.store(failed)
		return failed, err
	}

	analysis, err := Analyze(ctx, pf)
	if err != nil {
		return cur, fmt.Errorf("analyze file: %w", err)
	}

	next, err := cur.WithFile(fileName, pf, analysis, s.opts.Now())
	if err != nil {
		return cur, err
	}
	e.store(next)

	log.Info("file uploaded",
		"rows", len(pf.Rows),
		"columns", len(pf.Headers),
		"phone_mapped", analysis.Mapping.HasPhone(),
	)
	return next, nil
}

// UpdateMapping applies manual column overrides. An empty header unmaps
// the field.
func (s *Service) UpdateMapping(ctx context.Context, id, tenantID string, overrides map[Field]string) (ImportSession, error) {
	return s.transition(id, tenantID, func(cur ImportSession) (ImportSession, error) {
		return cur.WithMapping(overrides, s.opts.Now())
	})
}

// ConfirmMapping normalizes every row and moves the session to preview.
func (s *Service) ConfirmMapping(ctx context.Context, id, tenantID string) (ImportSession, error) {
	return s.transition(id, tenantID, func(cur ImportSession) (ImportSession, error) {
		start := time.Now()
		next, err := cur.ConfirmMapping(ctx, s.opts.Now())
		if err != nil {
			return cur, err
		}
		valid, invalid := Counts(next.Records)
		logging.WithFields(ctx, "session_id", id, "tenant_id", tenantID).Info("mapping confirmed",
			"valid", valid,
			"invalid", invalid,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return next, nil
	})
}

// Back moves preview to mapping or mapping to upload.
func (s *Service) Back(ctx context.Context, id, tenantID string) (ImportSession, error) {
	return s.transition(id, tenantID, func(cur ImportSession) (ImportSession, error) {
		return cur.Back(s.opts.Now())
	})
}

// Reset returns a completed session to a fresh upload stage.
func (s *Service) Reset(ctx context.Context, id, tenantID string) (ImportSession, error) {
	return s.transition(id, tenantID, func(cur ImportSession) (ImportSession, error) {
		return cur.Reset(s.opts.Now())
	})
}

// Delete discards a session. A session with a commit in flight cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, id, tenantID string) error {
	e, err := s.lookup(id, tenantID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.load().Stage == StageImporting {
		return ErrCommitInProgress
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Commit submits the valid records of a session in preview and waits for
// the gateway. campaignID, when non-nil, overrides the campaign chosen at
// upload.
//
// The gateway call runs detached from ctx cancellation and is bounded by
// the commit timeout, so a commit is never abandoned half way. A gateway
// failure is not returned as an error: the session completes with
// Succeeded 0 and the mapped message in Result.Error.
func (s *Service) Commit(ctx context.Context, id, tenantID string, campaignID *uuid.UUID) (ImportSession, error) {
	e, err := s.lookup(id, tenantID)
	if err != nil {
		return ImportSession{}, err
	}

	e.mu.Lock()
	cur := e.load()
	started, err := cur.BeginCommit(campaignID, s.opts.Now())
	if err != nil {
		e.mu.Unlock()
		return cur, err
	}
	if err := s.checkCampaign(ctx, tenantID, started.CampaignID); err != nil {
		e.mu.Unlock()
		return cur, err
	}
	inputs, skipped := BuildLeadInputs(started.Records, tenantID, s.opts.Defaults, started.CampaignID)
	if err := s.limiter.Acquire(ctx); err != nil {
		e.mu.Unlock()
		return cur, err
	}
	e.store(started)
	e.mu.Unlock()

	result := s.runCommit(ctx, started, inputs, skipped)
	s.limiter.Release()

	e.mu.Lock()
	done, err := e.load().Complete(result, s.opts.Now())
	if err != nil {
		cur := e.load()
		e.mu.Unlock()
		return cur, err
	}
	e.store(done)
	e.mu.Unlock()

	s.recordAudit(ctx, newAuditEntry(ctx, done, len(inputs)+len(skipped), result, s.opts.Now()))
	return done, nil
}

func (s *Service) checkCampaign(ctx context.Context, tenantID string, id *uuid.UUID) error {
	if id == nil || s.campaigns == nil {
		return nil
	}
	ok, err := s.campaigns.CampaignExists(ctx, tenantID, *id)
	if err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !ok {
		return ErrCampaignNotFound
	}
	return nil
}

// runCommit calls the gateway and always returns a result; errors and
// panics become a failed result. Records skipped before submission count
// as failed and are listed with the gateway's rejections.
func (s *Service) runCommit(ctx context.Context, sess ImportSession, inputs []LeadInput, skipped []RowRejection) (result ImportResult) {
	log := logging.WithFields(ctx,
		"session_id", sess.ID,
		"tenant_id", sess.TenantID,
		"submitted", len(inputs),
		"skipped", len(skipped),
		"ip", GetIPAddressFromContext(ctx),
	)
	start := time.Now()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CommitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in commit", "panic", r)
			result = ImportResult{
				Failed:   len(inputs),
				Error:    FormatUserError(fmt.Errorf("internal error: %v", r)),
				Duration: time.Since(start),
			}
		}
		result = mergeSkipped(result, skipped)
	}()

	if len(inputs) == 0 {
		log.Warn("no records left to submit")
		return ImportResult{Duration: time.Since(start)}
	}

	result, err := commitLeads(cctx, s.gateway, inputs)
	result.Duration = time.Since(start)
	if err != nil {
		log.Error("commit failed", "error", err, "duration_ms", result.Duration.Milliseconds())
		result.Error = FormatUserError(err)
		return result
	}

	log.Info("commit completed",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"rejected", len(result.Rejected),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

// mergeSkipped folds records skipped before submission into result,
// keeping rejections in row order.
func mergeSkipped(result ImportResult, skipped []RowRejection) ImportResult {
	if len(skipped) == 0 {
		return result
	}
	result.Failed += len(skipped)
	rejected := make([]RowRejection, 0, len(skipped)+len(result.Rejected))
	rejected = append(rejected, skipped...)
	rejected = append(rejected, result.Rejected...)
	slices.SortStableFunc(rejected, func(a, b RowRejection) int {
		return cmp.Compare(a.Row, b.Row)
	})
	result.Rejected = rejected
	return result
}

func requireRecords(sess ImportSession) error {
	switch sess.Stage {
	case StagePreview, StageImporting, StageComplete:
		return nil
	default:
		return fmt.Errorf("%w: no preview in %s stage", ErrInvalidTransition, sess.Stage)
	}
}

// Preview returns counts and the first rows of a normalized session.
func (s *Service) Preview(ctx context.Context, id, tenantID string) (PreviewResponse, error) {
	sess, err := s.Get(ctx, id, tenantID)
	if err != nil {
		return PreviewResponse{}, err
	}
	if err := requireRecords(sess); err != nil {
		return PreviewResponse{}, err
	}
	return BuildPreview(sess.ID, sess.Records, s.opts.PreviewRowLimit), nil
}

// WriteInvalidRows exports the invalid rows of a normalized session as CSV.
func (s *Service) WriteInvalidRows(ctx context.Context, id, tenantID string, w io.Writer) error {
	sess, err := s.Get(ctx, id, tenantID)
	if err != nil {
		return err
	}
	if err := requireRecords(sess); err != nil {
		return err
	}
	return WriteInvalidRowsCSV(w, sess.Headers, sess.Rows, sess.Records)
}

// Campaigns lists the tenant's campaigns when the gateway can list them.
func (s *Service) Campaigns(ctx context.Context, tenantID string) ([]Campaign, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	lister, ok := s.gateway.(CampaignLister)
	if !ok {
		return []Campaign{}, nil
	}
	return lister.ListCampaigns(ctx, tenantID)
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// LimiterStatus reports commit slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForCommits blocks until no commit is in flight or ctx ends.
func (s *Service) WaitForCommits(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
