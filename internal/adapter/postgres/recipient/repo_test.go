package recipient_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres/recipient"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

func chatID() int64 { return rand.Int64N(1 << 40) }

func TestRepo_RegisterAndFind(t *testing.T) {
	t.Parallel()
	repo := recipient.New(testhelper.SetupTestDB(t))
	ctx := context.Background()

	id := chatID()
	name := "Alice_" + testhelper.UniqueSuffix()
	require.NoError(t, repo.Register(ctx, id, &name))

	got, err := repo.FindByHandle(ctx, domain.NormalizeHandle("@"+name))
	require.NoError(t, err)
	assert.Equal(t, id, got.ChatID)
}

func TestRepo_Register_UsernameMovesToNewChat(t *testing.T) {
	t.Parallel()
	repo := recipient.New(testhelper.SetupTestDB(t))
	ctx := context.Background()

	name := "mover_" + testhelper.UniqueSuffix()
	oldChat, newChat := chatID(), chatID()
	require.NoError(t, repo.Register(ctx, oldChat, &name))
	require.NoError(t, repo.Register(ctx, newChat, &name))

	got, err := repo.FindByHandle(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, newChat, got.ChatID)
}

func TestRepo_Register_Idempotent(t *testing.T) {
	t.Parallel()
	repo := recipient.New(testhelper.SetupTestDB(t))
	ctx := context.Background()

	name := "again_" + testhelper.UniqueSuffix()
	id := chatID()
	require.NoError(t, repo.Register(ctx, id, &name))
	require.NoError(t, repo.Register(ctx, id, &name))
	require.NoError(t, repo.Register(ctx, chatID(), nil))
}

func TestRepo_FindByHandle_NotFound(t *testing.T) {
	t.Parallel()
	repo := recipient.New(testhelper.SetupTestDB(t))

	_, err := repo.FindByHandle(context.Background(), "nobody_"+testhelper.UniqueSuffix())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
