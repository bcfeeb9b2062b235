package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store/memory"
)

func TestExportDailyWritesWorkbook(t *testing.T) {
	svc := service.New(memory.NewSeeded(), nil, nil, service.Options{})
	ctx := service.WithActor(context.Background(), cliActor)
	today := time.Now().UTC().Format(domain.DateLayout)

	var buf bytes.Buffer
	require.NoError(t, exportDaily(ctx, svc, today, today, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}

func TestExportMonthlyRejectsOutOfRangeYear(t *testing.T) {
	svc := service.New(memory.NewSeeded(), nil, nil, service.Options{})
	ctx := service.WithActor(context.Background(), cliActor)

	var buf bytes.Buffer
	err := exportMonthly(ctx, svc, 1999, false, &buf)
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestExportRequiresAdminActor(t *testing.T) {
	svc := service.New(memory.NewSeeded(), nil, nil, service.Options{})

	var buf bytes.Buffer
	err := exportDaily(context.Background(), svc, "", "", &buf)
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"migrate", "up"}, {"migrate", "version"}, {"export", "daily"}, {"export", "monthly"}, {"user", "create"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestDatabaseURLRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := databaseURL()
	assert.Error(t, err)
}
