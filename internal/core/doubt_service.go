package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/models"
	"doubtsolver-backend/internal/storage"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
	maxMessageLength     = 5000

	// compensationTimeout bounds the cleanup of orphaned uploads.
	compensationTimeout = 30 * time.Second
)

// UploadLimits bounds the files a student may attach.
type UploadLimits struct {
	MaxBytes  int64
	MaxImages int
}

// DefaultUploadLimits allows three images of at most 5 MiB each.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{MaxBytes: 5 * 1024 * 1024, MaxImages: 3}
}

// DoubtServiceDeps are the collaborators of the doubt service.
type DoubtServiceDeps struct {
	Doubts   db.DoubtRepository
	Messages db.MessageRepository
	Objects  storage.ObjectStore
	Gate     SubscriptionGate
	Audit    AuditService
	Notifier Notifier
	Limits   UploadLimits
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// doubtService implements the DoubtService interface.
type doubtService struct {
	doubtRepo   db.DoubtRepository
	messageRepo db.MessageRepository
	objects     storage.ObjectStore
	gate        SubscriptionGate
	audit       AuditService
	notifier    Notifier
	limits      UploadLimits
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewDoubtService creates a new DoubtService instance.
func NewDoubtService(deps DoubtServiceDeps) DoubtService {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier
	}
	if deps.Limits == (UploadLimits{}) {
		deps.Limits = DefaultUploadLimits()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &doubtService{
		doubtRepo:   deps.Doubts,
		messageRepo: deps.Messages,
		objects:     deps.Objects,
		gate:        deps.Gate,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		limits:      deps.Limits,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         utcNow,
	}
}

// requireAdmin checks the role stored on the actor's profile.
func requireAdmin(actor *models.User) error {
	if actor == nil {
		return denied("not authenticated")
	}
	if !actor.IsAdmin() {
		return denied("administrator role required")
	}
	return nil
}

// preparedImage is a validated upload waiting to be stored.
type preparedImage struct {
	contentType string
	ext         string
	data        []byte
}

// CreateDoubt stores a new doubt with status=open.
//
// The images are uploaded under the doubt's reserved ID before the document
// is written, and the document is written once with the final image URLs.
// If any upload or the write fails, the uploaded objects are deleted, so a
// doubt is never visible without its images.
func (s *doubtService) CreateDoubt(ctx context.Context, user *models.User, in CreateDoubtInput) (*models.Doubt, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	// The gate comes first: an unsubscribed caller is told to pay, whatever the input.
	if !s.gate.IsSubscribed(ctx, user.ID) {
		return nil, denied(ReasonNotSubscribed)
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	subject := in.Subject
	if subject == "" {
		subject = models.SubjectPhysics
	}
	switch {
	case title == "":
		return nil, invalid("title", "must not be empty")
	case len(title) > maxTitleLength:
		return nil, invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	case description == "":
		return nil, invalid("description", "must not be empty")
	case len(description) > maxDescriptionLength:
		return nil, invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	case !subject.Valid():
		return nil, invalid("subject", fmt.Sprintf("unknown subject %q", subject))
	}
	images, err := s.prepareImages(in.Images)
	if err != nil {
		return nil, err
	}

	doubtID := s.doubtRepo.NewID()
	now := s.now()

	urls, uploaded, err := s.uploadImages(ctx, user.ID, doubtID, now, images)
	if err != nil {
		s.compensate(ctx, doubtID, uploaded)
		return nil, remote("upload doubt images", err)
	}

	doubt := &models.Doubt{
		ID:          doubtID,
		UserID:      user.ID,
		UserEmail:   user.Email,
		Title:       title,
		Description: description,
		Subject:     subject,
		Status:      models.DoubtOpen,
		Images:      urls,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.doubtRepo.Create(ctx, doubt); err != nil {
		s.compensate(ctx, doubtID, uploaded)
		return nil, remote("create doubt", err)
	}

	s.logger.Info("Doubt created",
		zap.String("doubtId", doubt.ID),
		zap.String("userId", user.ID),
		zap.String("subject", string(subject)),
		zap.Int("images", len(urls)))
	s.metrics.DoubtCreated(string(subject))
	recordAudit(ctx, s.audit, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.AuditDoubtCreate,
		TargetType: models.AuditTargetDoubt,
		TargetID:   doubt.ID,
		Timestamp:  now,
		Details: map[string]interface{}{
			"title":   title,
			"subject": string(subject),
			"images":  len(urls),
		},
	})
	return doubt, nil
}

func (s *doubtService) prepareImages(files []models.FileUpload) ([]preparedImage, error) {
	if len(files) > s.limits.MaxImages {
		return nil, invalid("images", fmt.Sprintf("at most %d images are allowed", s.limits.MaxImages))
	}
	images := make([]preparedImage, 0, len(files))
	for i, f := range files {
		field := fmt.Sprintf("images[%d]", i)
		if f.Size() == 0 {
			return nil, invalid(field, "file is empty")
		}
		if f.Size() > s.limits.MaxBytes {
			return nil, invalid(field, fmt.Sprintf("file exceeds %d bytes", s.limits.MaxBytes))
		}
		contentType := storage.DetectContentType(f.Data)
		if !strings.HasPrefix(contentType, "image/") {
			return nil, invalid(field, fmt.Sprintf("unsupported file type %q", contentType))
		}
		images = append(images, preparedImage{
			contentType: contentType,
			ext:         storage.Extension(contentType, f.Filename),
			data:        f.Data,
		})
	}
	return images, nil
}

// uploadImages stores the images concurrently and returns their URLs in input
// order, plus the paths that were written (for compensation).
func (s *doubtService) uploadImages(ctx context.Context, userID, doubtID string, at time.Time, images []preparedImage) ([]string, []string, error) {
	urls := make([]string, len(images))
	written := make([]string, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.MaxImages)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			objectPath := storage.DoubtImagePath(userID, doubtID, at, i, img.ext)
			u, err := s.objects.Upload(gctx, objectPath, img.contentType, img.data)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			urls[i] = u
			written[i] = objectPath
			return nil
		})
	}
	err := g.Wait()

	uploaded := make([]string, 0, len(written))
	for _, p := range written {
		if p != "" {
			uploaded = append(uploaded, p)
		}
	}
	return urls, uploaded, err
}

// compensate deletes objects uploaded for a doubt that was never written.
// It runs even if the request context is already cancelled.
func (s *doubtService) compensate(ctx context.Context, doubtID string, paths []string) {
	if len(paths) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	for _, p := range paths {
		if err := s.objects.Delete(cctx, p); err != nil {
			s.logger.Error("Failed to delete orphaned doubt image",
				zap.String("doubtId", doubtID),
				zap.String("path", p),
				zap.Error(err))
		}
	}
	s.logger.Warn("Doubt creation rolled back", zap.String("doubtId", doubtID), zap.Int("deletedObjects", len(paths)))
}

func (s *doubtService) load(ctx context.Context, doubtID string) (*models.Doubt, error) {
	if strings.TrimSpace(doubtID) == "" {
		return nil, invalid("doubtId", "must not be empty")
	}
	doubt, err := s.doubtRepo.GetByID(ctx, doubtID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDoubtNotFound, doubtID)
		}
		return nil, remote("get doubt", err)
	}
	return doubt, nil
}

// GetDoubt hides doubts of other students behind ErrDoubtNotFound.
func (s *doubtService) GetDoubt(ctx context.Context, user *models.User, doubtID string) (*models.Doubt, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	doubt, err := s.load(ctx, doubtID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() && doubt.UserID != user.ID {
		return nil, fmt.Errorf("%w: %s", ErrDoubtNotFound, doubtID)
	}
	return doubt, nil
}

func validStatusFilter(status models.DoubtStatus) error {
	if status != "" && !status.Valid() {
		return invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	return nil
}

func (s *doubtService) ListMyDoubts(ctx context.Context, user *models.User, status models.DoubtStatus) ([]*models.Doubt, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	if err := validStatusFilter(status); err != nil {
		return nil, err
	}
	doubts, err := s.doubtRepo.List(ctx, models.DoubtFilter{UserID: user.ID, Status: status})
	if err != nil {
		return nil, remote("list doubts", err)
	}
	return doubts, nil
}

func (s *doubtService) ListSolved(ctx context.Context, user *models.User) ([]*models.Doubt, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	doubts, err := s.doubtRepo.List(ctx, models.DoubtFilter{
		UserID:         user.ID,
		Status:         models.DoubtSolved,
		OrderByUpdated: true,
	})
	if err != nil {
		return nil, remote("list solved doubts", err)
	}
	return doubts, nil
}

func (s *doubtService) WatchMyDoubts(ctx context.Context, user *models.User, status models.DoubtStatus) (db.Stream[*models.Doubt], error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	if err := validStatusFilter(status); err != nil {
		return nil, err
	}
	return s.doubtRepo.Watch(ctx, models.DoubtFilter{UserID: user.ID, Status: status}), nil
}

func validDoubtFilter(filter models.DoubtFilter) error {
	if err := validStatusFilter(filter.Status); err != nil {
		return err
	}
	if filter.Subject != "" && !filter.Subject.Valid() {
		return invalid("subject", fmt.Sprintf("unknown subject %q", filter.Subject))
	}
	if filter.Limit < 0 {
		return invalid("limit", "must not be negative")
	}
	return nil
}

func (s *doubtService) ListDoubts(ctx context.Context, actor *models.User, filter models.DoubtFilter) ([]*models.Doubt, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validDoubtFilter(filter); err != nil {
		return nil, err
	}
	doubts, err := s.doubtRepo.List(ctx, filter)
	if err != nil {
		return nil, remote("list doubts", err)
	}
	return doubts, nil
}

func (s *doubtService) WatchDoubts(ctx context.Context, actor *models.User, filter models.DoubtFilter) (db.Stream[*models.Doubt], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validDoubtFilter(filter); err != nil {
		return nil, err
	}
	return s.doubtRepo.Watch(ctx, filter), nil
}

// checkLink accepts an empty string (clears the field) or an absolute http(s) URL.
func checkLink(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(field, "must be an http or https URL")
	}
	return nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

// normalizeSolution trims the provided fields and validates them.
func normalizeSolution(solution models.AttachSolutionRequest) (models.AttachSolutionRequest, error) {
	solution = models.AttachSolutionRequest{
		SolutionYouTubeURL: trimmed(solution.SolutionYouTubeURL),
		SolutionNotes:      trimmed(solution.SolutionNotes),
		LiveSessionLink:    trimmed(solution.LiveSessionLink),
	}
	if solution.SolutionYouTubeURL != nil {
		if err := checkLink("solutionYouTubeUrl", *solution.SolutionYouTubeURL); err != nil {
			return solution, err
		}
	}
	if solution.LiveSessionLink != nil {
		if err := checkLink("liveSessionLink", *solution.LiveSessionLink); err != nil {
			return solution, err
		}
	}
	if solution.SolutionNotes != nil && len(*solution.SolutionNotes) > maxDescriptionLength {
		return solution, invalid("solutionNotes", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	return solution, nil
}

// TransitionStatus sets any status from any status; no state is terminal.
func (s *doubtService) TransitionStatus(ctx context.Context, actor *models.User, doubtID string, status models.DoubtStatus) (*models.Doubt, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.UpdateDoubt(ctx, actor, doubtID, models.UpdateDoubtRequest{Status: status})
}

// AttachSolution writes the provided solution fields. It never changes status.
func (s *doubtService) AttachSolution(ctx context.Context, actor *models.User, doubtID string, solution models.AttachSolutionRequest) (*models.Doubt, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if solution.Empty() {
		return nil, invalid("solution", "nothing to update")
	}
	return s.UpdateDoubt(ctx, actor, doubtID, models.UpdateDoubtRequest{AttachSolutionRequest: solution})
}

// UpdateDoubt applies a status change and solution fields together, with a
// single updatedAt. The student gets one notification: the solution one when
// solution content was written, otherwise the status one.
func (s *doubtService) UpdateDoubt(ctx context.Context, actor *models.User, doubtID string, req models.UpdateDoubtRequest) (*models.Doubt, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", req.Status))
	}
	solution, err := normalizeSolution(req.AttachSolutionRequest)
	if err != nil {
		return nil, err
	}
	if req.Status == "" && solution.Empty() {
		return nil, invalid("doubt", "nothing to update")
	}

	before, err := s.load(ctx, doubtID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	change := db.DoubtChange{Status: req.Status, Solution: solution}
	if err := s.doubtRepo.Update(ctx, doubtID, change, now); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDoubtNotFound, doubtID)
		}
		return nil, remote("update doubt", err)
	}

	after := *before
	after.UpdatedAt = now
	if req.Status != "" {
		after.Status = req.Status
	}
	details := map[string]interface{}{}
	if solution.SolutionYouTubeURL != nil {
		after.SolutionYouTubeURL = *solution.SolutionYouTubeURL
		details["solutionYouTubeUrl"] = after.SolutionYouTubeURL
	}
	if solution.SolutionNotes != nil {
		after.SolutionNotes = *solution.SolutionNotes
		details["solutionNotes"] = len(after.SolutionNotes)
	}
	if solution.LiveSessionLink != nil {
		after.LiveSessionLink = *solution.LiveSessionLink
		details["liveSessionLink"] = after.LiveSessionLink
	}

	if req.Status != "" {
		s.logger.Info("Doubt status changed",
			zap.String("doubtId", doubtID),
			zap.String("from", string(before.Status)),
			zap.String("to", string(req.Status)),
			zap.String("actor", actor.ID))
		s.metrics.DoubtTransitioned(string(req.Status))
		recordAudit(ctx, s.audit, s.logger, models.AuditLog{
			UserID:     actor.ID,
			Action:     models.AuditDoubtStatus,
			TargetType: models.AuditTargetDoubt,
			TargetID:   doubtID,
			Timestamp:  now,
			Details: map[string]interface{}{
				"from": string(before.Status),
				"to":   string(req.Status),
			},
		})
	}
	if !solution.Empty() {
		s.logger.Info("Doubt solution updated", zap.String("doubtId", doubtID), zap.String("actor", actor.ID))
		s.metrics.SolutionAttached()
		recordAudit(ctx, s.audit, s.logger, models.AuditLog{
			UserID:     actor.ID,
			Action:     models.AuditDoubtSolution,
			TargetType: models.AuditTargetDoubt,
			TargetID:   doubtID,
			Timestamp:  now,
			Details:    details,
		})
	}

	var event *Event
	switch {
	case !solution.Empty() && after.HasSolution():
		event = &Event{
			Type:       EventDoubtSolutionAttached,
			Attributes: map[string]string{"title": after.Title, "status": string(after.Status)},
		}
	case req.Status != "" && before.Status != req.Status:
		event = &Event{
			Type:       EventDoubtStatusChanged,
			Attributes: map[string]string{"title": after.Title, "status": string(req.Status)},
		}
	}
	if event != nil {
		event.UserID = after.UserID
		event.UserEmail = after.UserEmail
		event.TargetID = doubtID
		event.OccurredAt = now
		err := publish(ctx, s.notifier, s.logger, *event)
		s.metrics.NotificationPublished(string(event.Type), err)
	}
	return &after, nil
}

// PostMessage appends to the doubt's thread. senderRole is the sender's stored
// role at this moment and is never rewritten.
func (s *doubtService) PostMessage(ctx context.Context, sender *models.User, doubtID, text string) (*models.Message, error) {
	if sender == nil {
		return nil, denied("not authenticated")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "must not be empty")
	}
	if len(text) > maxMessageLength {
		return nil, invalid("text", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}
	doubt, err := s.GetDoubt(ctx, sender, doubtID)
	if err != nil {
		return nil, err
	}

	role := sender.Role
	if !role.Valid() {
		role = models.RoleStudent
	}
	now := s.now()
	msg := &models.Message{
		DoubtID:     doubt.ID,
		SenderID:    sender.ID,
		SenderRole:  role,
		Text:        text,
		Attachments: []string{},
		CreatedAt:   now,
	}
	id, err := s.messageRepo.Append(ctx, doubt.ID, msg)
	if err != nil {
		return nil, remote("post message", err)
	}
	msg.ID = id
	s.metrics.MessagePosted(string(role))

	if sender.ID != doubt.UserID {
		err := publish(ctx, s.notifier, s.logger, Event{
			Type:       EventMessagePosted,
			UserID:     doubt.UserID,
			UserEmail:  doubt.UserEmail,
			TargetID:   doubt.ID,
			Attributes: map[string]string{"title": doubt.Title, "messageId": id},
			OccurredAt: now,
		})
		s.metrics.NotificationPublished(string(EventMessagePosted), err)
	}
	return msg, nil
}

func (s *doubtService) ListMessages(ctx context.Context, user *models.User, doubtID string) ([]*models.Message, error) {
	doubt, err := s.GetDoubt(ctx, user, doubtID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messageRepo.List(ctx, doubt.ID)
	if err != nil {
		return nil, remote("list messages", err)
	}
	return msgs, nil
}

func (s *doubtService) WatchMessages(ctx context.Context, user *models.User, doubtID string) (db.Stream[*models.Message], error) {
	doubt, err := s.GetDoubt(ctx, user, doubtID)
	if err != nil {
		return nil, err
	}
	return s.messageRepo.Watch(ctx, doubt.ID), nil
}
