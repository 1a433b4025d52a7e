package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"prepmate/internal/domain"
)

// Messages relayed to the model as tool results. The model is expected to
// paraphrase them for the user, so they read as instructions to the agent.
const (
	noResumeMessage       = "No resume found. Please ask the user to upload their PDF resume so you can process it."
	resumeUploadedMessage = "Resume uploaded successfully."
	researchTimedOut      = "Research subagent timed out."
	researchNoContent     = "Research subagent returned no content."
)

const (
	resumeObjectName = "resume.txt"
	prepsPrefix      = "preps"
	presignExpiry    = time.Hour
)

// Slug derivation from the research document's title heading. A heading like
// "# Interview Prep: Acme Corp - Staff Engineer" yields
// "acme-corp---staff-engineer".
var (
	titlePattern      = regexp.MustCompile(`(?m)#.*?:\s*(.+?)$`)
	nonSlugPattern    = regexp.MustCompile(`[^\w\s-]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Delegator hands a research query to the subagent and returns the finished
// markdown document.
type Delegator interface {
	Research(ctx context.Context, query string) (string, error)
}

// PrepService implements the document operations behind the tool surface:
// resume read/write, prep listing, and prep generation. All object keys are
// scoped by the caller's normalized email.
type PrepService struct {
	store     domain.ObjectStore
	research  Delegator
	converter domain.DocumentConverter
	logger    *slog.Logger
	now       func() time.Time
}

// NewPrepService creates a PrepService.
func NewPrepService(store domain.ObjectStore, research Delegator, converter domain.DocumentConverter, logger *slog.Logger) *PrepService {
	return &PrepService{
		store:     store,
		research:  research,
		converter: converter,
		logger:    logger,
		now:       time.Now,
	}
}

func resumeKey(email string) string {
	return path.Join(email, resumeObjectName)
}

func prepKey(email, slug string) string {
	return path.Join(email, prepsPrefix, slug+".pdf")
}

// GetResume returns the caller's stored resume text, or a guidance message
// asking for an upload when none exists.
func (s *PrepService) GetResume(ctx context.Context, email string) (string, error) {
	text, err := s.fetchResume(ctx, email)
	if err != nil {
		return "", err
	}
	if text == "" {
		return noResumeMessage, nil
	}
	return text, nil
}

// UploadResume stores the caller's resume text, replacing any previous one.
func (s *PrepService) UploadResume(ctx context.Context, email, content string) (string, error) {
	key := resumeKey(email)
	if err := s.store.Put(ctx, key, []byte(content), "text/plain"); err != nil {
		return "", domain.WrapOp("store resume", err)
	}
	s.logger.Info("saved resume text", "key", key)
	return resumeUploadedMessage, nil
}

// ListPreps returns metadata for every prep document the caller has
// generated, each with a presigned download URL.
func (s *PrepService) ListPreps(ctx context.Context, email string) ([]domain.PrepDocument, error) {
	prefix := path.Join(email, prepsPrefix) + "/"
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, domain.WrapOp("list preps", err)
	}

	preps := make([]domain.PrepDocument, 0, len(objects))
	for _, obj := range objects {
		url, err := s.store.PresignGet(ctx, obj.Key, presignExpiry)
		if err != nil {
			return nil, domain.WrapOp("presign prep", err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), ".pdf")
		preps = append(preps, domain.PrepDocument{
			Name:      name,
			CreatedAt: obj.LastModified.Format(time.RFC3339),
			URL:       url,
		})
	}
	return preps, nil
}

// GeneratePrep produces a new interview prep document: it delegates research
// to the subagent, renders the markdown result to PDF, stores it under a
// name derived from the document title, and returns a presigned URL.
//
// Expected delegation failures (task failed, timeout, empty result) and a
// missing resume come back as guidance messages rather than errors, so the
// model can relay them. Infrastructure failures are returned as errors.
func (s *PrepService) GeneratePrep(ctx context.Context, email, jobDescription string) (string, error) {
	resumeText, err := s.fetchResume(ctx, email)
	if err != nil {
		return "", err
	}
	if resumeText == "" {
		return noResumeMessage, nil
	}

	query := strings.Join([]string{
		"## Candidate Resume",
		resumeText,
		"## Job Description",
		jobDescription,
	}, "\n\n")

	markdown, err := s.research.Research(ctx, query)
	if err != nil {
		var taskErr *domain.TaskFailedError
		switch {
		case errors.As(err, &taskErr):
			s.logger.Error("research task failed", "task_id", taskErr.TaskID, "state", taskErr.State)
			return fmt.Sprintf("Research subagent failed with state: %s", taskErr.State), nil
		case errors.Is(err, domain.ErrTimeout):
			s.logger.Warn("research task timed out", "user", email)
			return researchTimedOut, nil
		case errors.Is(err, domain.ErrNoContent):
			s.logger.Warn("research task returned no content", "user", email)
			return researchNoContent, nil
		}
		return "", domain.WrapOp("delegate research", err)
	}

	slug := s.deriveSlug(markdown)

	pdf, err := s.converter.Convert(ctx, markdown)
	if err != nil {
		return "", domain.WrapOp("render pdf", err)
	}

	key := prepKey(email, slug)
	if err := s.store.Put(ctx, key, pdf, "application/pdf"); err != nil {
		return "", domain.WrapOp("store prep pdf", err)
	}
	s.logger.Info("saved prep pdf", "key", key, "bytes", len(pdf))

	url, err := s.store.PresignGet(ctx, key, presignExpiry)
	if err != nil {
		return "", domain.WrapOp("presign prep pdf", err)
	}
	return url, nil
}

// fetchResume returns the stored resume text, or "" when none exists.
func (s *PrepService) fetchResume(ctx context.Context, email string) (string, error) {
	data, err := s.store.Get(ctx, resumeKey(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", domain.WrapOp("fetch resume", err)
	}
	return string(data), nil
}

// deriveSlug extracts a filename base from the document's first title
// heading of the form "# <anything>: <Title>". Without one it falls back to
// a timestamped name.
func (s *PrepService) deriveSlug(markdown string) string {
	m := titlePattern.FindStringSubmatch(markdown)
	if m == nil {
		return "prep-" + s.now().Format("20060102-150405")
	}
	slug := nonSlugPattern.ReplaceAllString(strings.TrimSpace(m[1]), "")
	slug = whitespacePattern.ReplaceAllString(slug, "-")
	return strings.ToLower(slug)
}
