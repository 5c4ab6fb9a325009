package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/store/memory"
)

func TestListAuditPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAuditStore()
	require.NoError(t, store.Log(ctx, "stake_created", map[string]any{"stake_id": uint64(8888)}))
	require.NoError(t, store.Log(ctx, "claimed", map[string]any{"stake_id": uint64(8888), "amount": "150"}))
	require.NoError(t, store.Log(ctx, "stake_closed", map[string]any{"stake_id": uint64(8888)}))

	views, err := listAudit(ctx, store, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "stake_closed", views[0].Event)
	assert.Equal(t, "claimed", views[1].Event)

	views, err = listAudit(ctx, store, domain.ListOpts{Offset: 2})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].ID)

	future := time.Now().Add(time.Hour)
	views, err = listAudit(ctx, store, domain.ListOpts{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, views)

	past := time.Now().Add(-time.Hour)
	views, err = listAudit(ctx, store, domain.ListOpts{Until: &past})
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = listAudit(ctx, store, domain.ListOpts{Since: &past, Until: &future})
	require.NoError(t, err)
	assert.Len(t, views, 3)

	var buf bytes.Buffer
	printAudit(&buf, views[1:2])
	assert.Contains(t, buf.String(), "claimed")
	assert.Contains(t, buf.String(), "amount=150 stake_id=8888")

	_, err = listAudit(ctx, nil, domain.ListOpts{})
	assert.Error(t, err)
}

func TestAuditListOpts(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	opts, err := auditListOpts("24h", "2026-10-19T11:00:00Z", 10, 5, now)
	require.NoError(t, err)
	require.NotNil(t, opts.Since)
	require.NotNil(t, opts.Until)
	assert.Equal(t, now.Add(-24*time.Hour), *opts.Since)
	assert.Equal(t, time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC), opts.Until.UTC())
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 5, opts.Offset)

	opts, err = auditListOpts("", "", 0, 0, now)
	require.NoError(t, err)
	assert.Nil(t, opts.Since)
	assert.Nil(t, opts.Until)

	_, err = auditListOpts("yesterday", "", 0, 0, now)
	assert.ErrorContains(t, err, "--since")

	_, err = auditListOpts("1h", "2h", 0, 0, now)
	assert.ErrorContains(t, err, "after --until")

	_, err = auditListOpts("", "", -1, 0, now)
	assert.Error(t, err)
}
