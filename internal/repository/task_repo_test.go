package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirostudio/studio_go_server/internal/model"
	"github.com/mirostudio/studio_go_server/internal/testutil"
)

func TestTaskRepository_MarkRunning(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)
	task := testutil.TestTask(t, db, user.ID)

	ok, err := repo.MarkRunning(task.ID, "prov-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, got.Status)
	require.NotNil(t, got.ProviderTaskID)
	assert.Equal(t, "prov-1", *got.ProviderTaskID)
}

func TestTaskRepository_MarkTerminal_ExactlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)
	task := testutil.TestTask(t, db, user.ID, testutil.WithTaskStatus(model.TaskStatusRunning))

	// 第一次转移赢
	ok, err := repo.MarkTerminal(task.ID, model.TaskStatusError, "", "boom")
	require.NoError(t, err)
	assert.True(t, ok)

	// 之后任何终态转移都输
	ok, err = repo.MarkTerminal(task.ID, model.TaskStatusSucceeded, "https://x/y.mp4", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkTerminal(task.ID, model.TaskStatusError, "", "boom again")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusError, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestTaskRepository_MarkTerminal_SucceededSetsResult(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)
	task := testutil.TestTask(t, db, user.ID, testutil.WithTaskStatus(model.TaskStatusRunning))

	ok, err := repo.MarkTerminal(task.ID, model.TaskStatusSucceeded, "https://cdn/x.png", "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSucceeded, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "https://cdn/x.png", got.ResultURL)
}

func TestTaskRepository_MarkRetrying_CountsAtomically(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)
	task := testutil.TestTask(t, db, user.ID)

	for i := 1; i <= 3; i++ {
		ok, err := repo.MarkRetrying(task.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(task.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TaskStatusRetrying, got.Status)
		assert.Equal(t, i, got.GenerateRetryCount)
	}

	// 终结后不再允许进入 retrying
	_, err := repo.MarkTerminal(task.ID, model.TaskStatusError, "", "done")
	require.NoError(t, err)

	ok, err := repo.MarkRetrying(task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTaskRepository_UpdateProgress_SkipsTerminal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)
	task := testutil.TestTask(t, db, user.ID, testutil.WithTaskStatus(model.TaskStatusSucceeded))

	require.NoError(t, repo.UpdateProgress(task.ID, 50))

	got, err := repo.GetByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSucceeded, got.Status)
	assert.Equal(t, 0, got.Progress)
}

func TestTaskRepository_ListStalePending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)

	stale := testutil.TestTask(t, db, user.ID)
	testutil.TestTask(t, db, user.ID) // fresh pending
	testutil.TestTask(t, db, user.ID, testutil.WithTaskStatus(model.TaskStatusRunning))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&model.GenerationTask{}).
		Where("id = ?", stale.ID).Update("created_at", old).Error)

	tasks, err := repo.ListStalePending(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, stale.ID, tasks[0].ID)
}

func TestTaskRepository_ListByUserID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTaskRepository(db)
	user := testutil.TestUser(t, db)

	testutil.TestTask(t, db, user.ID, testutil.WithKind(model.TaskKindVideo))
	testutil.TestTask(t, db, user.ID, testutil.WithKind(model.TaskKindImage))
	testutil.TestTask(t, db, user.ID, testutil.WithKind(model.TaskKindVideo))

	all, total, err := repo.ListByUserID(user.ID, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	videos, total, err := repo.ListByUserID(user.ID, model.TaskKindVideo, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, videos, 2)
}
