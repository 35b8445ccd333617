package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/detection"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres/postgrestest"
)

type store interface {
	Save(ctx context.Context, r *detection.Result) error
	Get(ctx context.Context, id string) (*detection.Result, error)
	Recent(ctx context.Context, limit int) ([]*detection.Result, error)
}

func result(id string, at time.Time) *detection.Result {
	return &detection.Result{
		ID:           id,
		Method:       detection.MethodSymptoms,
		DiseaseName:  "Đạo ôn",
		Confidence:   55.7,
		Severity:     "high",
		Treatment:    "Tricyclazole",
		Alternatives: []string{"Bạc lá"},
		Status:       matcher.StatusConfident,
		Keywords:     []string{"vang", "kho"},
		Description:  "lá vàng và khô",
		CreatedAt:    at,
	}
}

func exerciseHistory(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, result(fmt.Sprintf("01H%d", i), base.Add(time.Duration(i)*time.Minute))))
	}
	inconclusive := &detection.Result{
		ID:         "01H9",
		Method:     detection.MethodImage,
		Status:     matcher.StatusInconclusive,
		Reason:     matcher.ReasonLowConfidence,
		Suggestion: matcher.PromptMoreDetail,
		ImageRef:   "s3://photos/leaf.jpg",
		CreatedAt:  base.Add(time.Hour),
	}
	require.NoError(t, s.Save(ctx, inconclusive))

	got, err := s.Get(ctx, "01H1")
	require.NoError(t, err)
	assert.Equal(t, "Đạo ôn", got.DiseaseName)
	assert.Equal(t, []string{"Bạc lá"}, got.Alternatives)
	assert.Equal(t, []string{"vang", "kho"}, got.Keywords)
	assert.InDelta(t, 55.7, got.Confidence, 1e-9)
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Minute)))

	got, err = s.Get(ctx, "01H9")
	require.NoError(t, err)
	assert.Equal(t, matcher.ReasonLowConfidence, got.Reason)
	assert.Equal(t, "s3://photos/leaf.jpg", got.ImageRef)
	assert.Empty(t, got.Alternatives)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrDetectionNotFound)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "01H9", recent[0].ID)
	assert.Equal(t, "01H2", recent[1].ID)
}

func TestMemory(t *testing.T) {
	exerciseHistory(t, NewMemory(10))
}

func TestMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Save(ctx, result(id, now)))
	}

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrDetectionNotFound)

	recent, err := m.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	r := result("x", time.Now())
	require.NoError(t, m.Save(ctx, r))
	r.DiseaseName = "changed"

	got, err := m.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Đạo ôn", got.DiseaseName)
}

func TestPostgres(t *testing.T) {
	client := postgrestest.Open(t)
	ctx := context.Background()
	_, err := client.DB.ExecContext(ctx, `DROP TABLE IF EXISTS detection_history`)
	require.NoError(t, err)

	p := NewPostgres(client)
	require.NoError(t, p.Migrate(ctx))
	require.NoError(t, p.Migrate(ctx), "migrations are idempotent")
	exerciseHistory(t, p)
}
