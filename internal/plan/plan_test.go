package plan

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store), store
}

func fields(name string, price string, credits int64) Fields {
	return Fields{
		Name:    name,
		Price:   decimal.RequireFromString(price),
		Credits: credits,
	}
}

func TestCreate_Valid(t *testing.T) {
	svc, _ := newTestService()

	p, err := svc.Create(context.Background(), fields("Starter Pack", "999.00", 50))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsActive)
	assert.Equal(t, int64(50), p.Credits)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("999.00")))
}

func TestCreate_RejectsMissingOrNonPositiveFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []Fields{
		fields("", "999.00", 50),
		fields("No Price", "0", 50),
		fields("Negative Price", "-1", 50),
		fields("No Credits", "999.00", 0),
		fields("Negative Credits", "999.00", -5),
	}
	for _, f := range cases {
		_, err := svc.Create(ctx, f)
		assert.ErrorIs(t, err, ErrValidation, "fields %+v", f)
	}
}

func TestListOrdering(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, name := range []string{"First", "Second", "Third"} {
		p := &Plan{
			ID:        name,
			Name:      name,
			Price:     decimal.NewFromInt(int64(100 * (i + 1))),
			Credits:   10,
			IsActive:  i != 1, // "Second" inactive
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base,
		}
		require.NoError(t, store.Create(ctx, p))
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "First", all[0].Name)
	assert.Equal(t, "Second", all[1].Name)
	assert.Equal(t, "Third", all[2].Name)

	active, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "First", active[0].Name)
	assert.Equal(t, "Third", active[1].Name)
}

func TestUpdate_UnknownPlan(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Update(context.Background(), "plan_missing", fields("X", "1.00", 1))
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestDelete_IsSoftDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, fields("Enterprise Pack", "4999.00", 500))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p.ID))

	// Still retrievable, just inactive.
	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDelete_UnknownPlan(t *testing.T) {
	svc, _ := newTestService()
	assert.ErrorIs(t, svc.Delete(context.Background(), "plan_missing"), ErrPlanNotFound)
}
