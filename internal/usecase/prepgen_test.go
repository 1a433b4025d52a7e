package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"prepmate/internal/domain"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	objects map[string][]byte
	mtimes  map[string]time.Time
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
	}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = body
	s.mtimes[key] = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var infos []domain.ObjectInfo
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, domain.ObjectInfo{Key: key, LastModified: s.mtimes[key]})
		}
	}
	return infos, nil
}

func (s *memStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key + "?sig=test", nil
}

// stubDelegator returns a canned research result.
type stubDelegator struct {
	markdown string
	err      error
	queries  []string
}

func (d *stubDelegator) Research(_ context.Context, query string) (string, error) {
	d.queries = append(d.queries, query)
	if d.err != nil {
		return "", d.err
	}
	return d.markdown, nil
}

// stubConverter marks the markdown it rendered.
type stubConverter struct{}

func (stubConverter) Convert(_ context.Context, markdown string) ([]byte, error) {
	return []byte("pdf:" + markdown), nil
}

func newTestPrepService(store domain.ObjectStore, research Delegator) *PrepService {
	svc := NewPrepService(store, research, stubConverter{}, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC) }
	return svc
}

func TestGetResumeMissing(t *testing.T) {
	svc := newTestPrepService(newMemStore(), &stubDelegator{})

	got, err := svc.GetResume(context.Background(), "user_at_example.com")
	require.NoError(t, err)
	require.Equal(t, noResumeMessage, got)
}

func TestUploadThenGetResume(t *testing.T) {
	store := newMemStore()
	svc := newTestPrepService(store, &stubDelegator{})
	ctx := context.Background()

	msg, err := svc.UploadResume(ctx, "user_at_example.com", "ten years of Go")
	require.NoError(t, err)
	require.Equal(t, resumeUploadedMessage, msg)
	require.Contains(t, store.objects, "user_at_example.com/resume.txt")

	got, err := svc.GetResume(ctx, "user_at_example.com")
	require.NoError(t, err)
	require.Equal(t, "ten years of Go", got)
}

func TestListPreps(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "user_at_example.com/preps/acme-corp.pdf", []byte("x"), ""))
	require.NoError(t, store.Put(ctx, "other_at_example.com/preps/ignored.pdf", []byte("x"), ""))

	svc := newTestPrepService(store, &stubDelegator{})
	preps, err := svc.ListPreps(ctx, "user_at_example.com")
	require.NoError(t, err)
	require.Len(t, preps, 1)
	require.Equal(t, "acme-corp", preps[0].Name)
	require.Equal(t, "2026-08-01T12:00:00Z", preps[0].CreatedAt)
	require.Contains(t, preps[0].URL, ".s3.")
}

func TestGeneratePrepNoResume(t *testing.T) {
	delegator := &stubDelegator{markdown: "# Interview Prep: X"}
	svc := newTestPrepService(newMemStore(), delegator)

	got, err := svc.GeneratePrep(context.Background(), "user_at_example.com", "some job")
	require.NoError(t, err)
	require.Equal(t, noResumeMessage, got)
	require.Empty(t, delegator.queries, "delegation must not happen without a resume")
}

func TestGeneratePrepHappyPath(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "user_at_example.com/resume.txt", []byte("my resume"), ""))

	delegator := &stubDelegator{markdown: "# Interview Prep: Acme Corp - Staff Engineer\n\nBody."}
	svc := newTestPrepService(store, delegator)

	url, err := svc.GeneratePrep(ctx, "user_at_example.com", "the job description")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://"))
	require.Contains(t, url, ".s3.")

	// Slug comes from the title heading.
	key := "user_at_example.com/preps/acme-corp---staff-engineer.pdf"
	require.Contains(t, store.objects, key)
	require.Equal(t, "pdf:"+delegator.markdown, string(store.objects[key]))

	// Query joins resume and job description under their headings.
	require.Len(t, delegator.queries, 1)
	require.Equal(t,
		"## Candidate Resume\n\nmy resume\n\n## Job Description\n\nthe job description",
		delegator.queries[0])
}

func TestGeneratePrepSlugFallback(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "u/resume.txt", []byte("r"), ""))

	svc := newTestPrepService(store, &stubDelegator{markdown: "no heading at all"})
	_, err := svc.GeneratePrep(ctx, "u", "jd")
	require.NoError(t, err)
	require.Contains(t, store.objects, "u/preps/prep-20260831-093000.pdf")
}

func TestGeneratePrepDelegationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"task failed",
			&domain.TaskFailedError{TaskID: "t1", State: domain.TaskFailed},
			"Research subagent failed with state: failed",
		},
		{
			"task canceled",
			&domain.TaskFailedError{TaskID: "t2", State: domain.TaskCanceled},
			"Research subagent failed with state: canceled",
		},
		{"timeout", fmt.Errorf("%w: task t3", domain.ErrTimeout), researchTimedOut},
		{"no content", fmt.Errorf("%w: task t4", domain.ErrNoContent), researchNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "u/resume.txt", []byte("r"), ""))

			svc := newTestPrepService(store, &stubDelegator{err: tt.err})
			got, err := svc.GeneratePrep(ctx, "u", "jd")
			require.NoError(t, err, "expected failures come back as guidance messages")
			require.Equal(t, tt.want, got)
		})
	}
}

func TestGeneratePrepInfrastructureError(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "u/resume.txt", []byte("r"), ""))

	svc := newTestPrepService(store, &stubDelegator{err: errors.New("connection reset")})
	_, err := svc.GeneratePrep(ctx, "u", "jd")
	require.Error(t, err)
}

func TestDeriveSlug(t *testing.T) {
	svc := newTestPrepService(newMemStore(), &stubDelegator{})

	tests := []struct {
		markdown string
		want     string
	}{
		{"# Interview Prep: Acme Corp - Staff Engineer", "acme-corp---staff-engineer"},
		{"# Prep: Data, Inc. (Remote)", "data-inc-remote"},
		{"preamble\n## Notes: Big Co SRE\nrest", "big-co-sre"},
		{"no colon heading\n# Just A Title\n", "prep-20260831-093000"},
		{"plain text only", "prep-20260831-093000"},
	}
	for _, tt := range tests {
		if got := svc.deriveSlug(tt.markdown); got != tt.want {
			t.Errorf("deriveSlug(%q) = %q, want %q", tt.markdown, got, tt.want)
		}
	}
}
