package habits

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/seetohshaokang/HabitEase/internal/domain/events"
	"github.com/seetohshaokang/HabitEase/internal/infrastructure/persistence/postgres/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *connection.Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// one connection keeps the in-memory database alive and shared
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Habit{}, &HabitLog{}, &HabitActivity{}))
	return connection.Wrap(db)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type memoryCache struct {
	mu        sync.Mutex
	entries   map[string]string
	published []*events.HabitEvent
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok {
		return "", assert.AnError
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *memoryCache) ClearByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *memoryCache) PublishHabitEvent(_ context.Context, event *events.HabitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return nil
}

type serviceFixture struct {
	svc   Service
	repo  Repository
	clock *testClock
	cache *memoryCache
	user  uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	repo := NewRepository(newTestDB(t))
	clock := &testClock{now: testNow}
	cache := newMemoryCache()
	cal := Calendar{Location: time.UTC, Clock: clock.Now}
	return &serviceFixture{
		svc:   NewService(repo, cache, cal, nil),
		repo:  repo,
		clock: clock,
		cache: cache,
		user:  uuid.New(),
	}
}

func (f *serviceFixture) createHabit(t *testing.T, name string, unit *string) *Habit {
	t.Helper()
	habit, err := f.svc.CreateHabit(context.Background(), CreateHabitInput{
		Name:   name,
		Unit:   unit,
		UserID: f.user,
	})
	require.NoError(t, err)
	return habit
}

func (f *serviceFixture) completeOn(t *testing.T, habitID uuid.UUID, at time.Time, value *string) *CompletionResult {
	t.Helper()
	f.clock.Set(at)
	result, err := f.svc.LogCompletion(context.Background(), habitID, f.user, value)
	require.NoError(t, err)
	return result
}

func TestService_CreateHabit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	habit := f.createHabit(t, "  Drink water  ", strPtr(" "))
	assert.Equal(t, "Drink water", habit.Name)
	assert.Equal(t, DefaultLogo, habit.Logo)
	assert.Nil(t, habit.Unit)
	assert.Equal(t, 0, habit.Streak)

	_, err := f.svc.CreateHabit(ctx, CreateHabitInput{Name: "   ", UserID: f.user})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CreateHabit(ctx, CreateHabitInput{Name: "Run"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_OwnershipIsolation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Meditate", nil)
	result := f.completeOn(t, habit.ID, testNow, nil)
	stranger := uuid.New()

	_, err := f.svc.GetHabit(ctx, habit.ID, stranger)
	assert.ErrorIs(t, err, ErrHabitNotFound)

	_, err = f.svc.LogCompletion(ctx, habit.ID, stranger, nil)
	assert.ErrorIs(t, err, ErrHabitNotFound)

	_, err = f.svc.GetHabitStatistics(ctx, habit.ID, stranger)
	assert.ErrorIs(t, err, ErrHabitNotFound)

	err = f.svc.DeleteHabitLog(ctx, result.Log.ID, stranger)
	assert.ErrorIs(t, err, ErrLogNotFound)

	err = f.svc.DeleteHabit(ctx, habit.ID, stranger)
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestService_LogCompletion_ConsecutiveDays(t *testing.T) {
	f := newServiceFixture(t)
	habit := f.createHabit(t, "Stretch", nil)

	for i := 4; i >= 0; i-- {
		result := f.completeOn(t, habit.ID, daysAgo(i), nil)
		assert.True(t, result.FirstOfDay)
		assert.Equal(t, 5-i, result.UpdatedStreak)
	}

	stored, err := f.repo.FindByID(context.Background(), habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Streak)
	require.NotNil(t, stored.LastCompletedDay)
	assert.Equal(t, "2024-03-15", *stored.LastCompletedDay)
	assert.Equal(t, 5, stored.StreakVersion)
}

func TestService_LogCompletion_GapRestarts(t *testing.T) {
	f := newServiceFixture(t)
	habit := f.createHabit(t, "Journal", nil)

	f.completeOn(t, habit.ID, daysAgo(3), nil)
	f.completeOn(t, habit.ID, daysAgo(2), nil)
	result := f.completeOn(t, habit.ID, daysAgo(0), nil)

	assert.Equal(t, 1, result.UpdatedStreak)
}

func TestService_LogCompletion_SameDay(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Pushups", strPtr("reps"))

	first := f.completeOn(t, habit.ID, testNow.Add(-2*time.Hour), strPtr("20"))
	second := f.completeOn(t, habit.ID, testNow, strPtr("15 reps"))

	assert.True(t, first.FirstOfDay)
	assert.False(t, second.FirstOfDay)
	assert.Equal(t, 1, second.UpdatedStreak)

	stats, err := f.svc.GetHabitStatistics(ctx, habit.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLogs)
	assert.Equal(t, 1, stats.UniqueCompletionDays)
	assert.Equal(t, 1, stats.CurrentStreak)
	require.NotNil(t, stats.Values)
	assert.Equal(t, 17.5, stats.Values.Average)
	assert.Equal(t, 20.0, stats.Values.Max)
}

func TestService_LogCompletion_Values(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	unitless := f.createHabit(t, "Floss", nil)
	result := f.completeOn(t, unitless.ID, testNow, strPtr("12"))
	assert.Nil(t, result.Log.Value)

	measured := f.createHabit(t, "Run", strPtr("km"))
	_, err := f.svc.LogCompletion(ctx, measured.ID, f.user, strPtr("far"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	logs, err := f.svc.GetHabitLogs(ctx, measured.ID, f.user)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// conflictingRepository makes the next failures streak writes lose their
// version check, as if another request had completed the habit first.
type conflictingRepository struct {
	Repository
	failures int
}

func (r *conflictingRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.Repository.Transaction(ctx, func(tx Repository) error {
		return fn(&conflictingTx{Repository: tx, parent: r})
	})
}

type conflictingTx struct {
	Repository
	parent *conflictingRepository
}

func (tx *conflictingTx) CompareAndSetStreak(ctx context.Context, habitID uuid.UUID, expectedVersion, streak int, lastDay *string) (bool, error) {
	if tx.parent.failures > 0 {
		tx.parent.failures--
		return false, nil
	}
	return tx.Repository.CompareAndSetStreak(ctx, habitID, expectedVersion, streak, lastDay)
}

func TestService_LogCompletion_RetriesOnConflict(t *testing.T) {
	base := NewRepository(newTestDB(t))
	repo := &conflictingRepository{Repository: base, failures: 2}
	svc := NewService(repo, nil, testCalendar(), nil)
	ctx := context.Background()
	user := uuid.New()

	habit, err := svc.CreateHabit(ctx, CreateHabitInput{Name: "Water plants", UserID: user})
	require.NoError(t, err)

	result, err := svc.LogCompletion(ctx, habit.ID, user, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedStreak)

	// rolled back attempts leave no logs behind
	logs, err := base.FindLogs(ctx, habit.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestService_LogCompletion_GivesUpAfterRepeatedConflicts(t *testing.T) {
	base := NewRepository(newTestDB(t))
	repo := &conflictingRepository{Repository: base, failures: maxCompletionAttempts}
	svc := NewService(repo, nil, testCalendar(), nil)
	ctx := context.Background()
	user := uuid.New()

	habit, err := svc.CreateHabit(ctx, CreateHabitInput{Name: "Water plants", UserID: user})
	require.NoError(t, err)

	_, err = svc.LogCompletion(ctx, habit.ID, user, nil)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	logs, err := base.FindLogs(ctx, habit.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	stored, err := base.FindByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Streak)
}

func TestService_DeletingTodaysLogIsRepairedOnRead(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Read", nil)

	result := f.completeOn(t, habit.ID, testNow, nil)
	require.NoError(t, f.svc.DeleteHabitLog(ctx, result.Log.ID, f.user))

	stored, err := f.repo.FindByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak, "deletes leave the cached streak alone")

	stats, err := f.svc.GetHabitStatistics(ctx, habit.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentStreak)
	assert.Equal(t, 1, stats.CachedStreak)
	assert.True(t, stats.StreakStale)

	stored, err = f.repo.FindByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Streak)

	action := ActionStreakRepaired
	activities, _, err := f.repo.ListActivities(ctx, ActivityFilter{HabitID: &habit.ID, Action: &action})
	require.NoError(t, err)
	assert.Len(t, activities, 1)

	stats, err = f.svc.GetHabitStatistics(ctx, habit.ID, f.user)
	require.NoError(t, err)
	assert.False(t, stats.StreakStale)
}

func TestService_UpdateHabitLog(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Cycle", strPtr("km"))
	result := f.completeOn(t, habit.ID, testNow, strPtr("10"))

	moved := daysAgo(3)
	updated, err := f.svc.UpdateHabitLog(ctx, result.Log.ID, f.user, UpdateLogInput{
		Value:     strPtr("12.5"),
		Timestamp: &moved,
	})
	require.NoError(t, err)
	assert.Equal(t, "12.5", *updated.Value)

	logs, err := f.svc.GetHabitLogs(ctx, habit.ID, f.user)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, moved.Equal(logs[0].Timestamp))

	_, err = f.svc.UpdateHabitLog(ctx, result.Log.ID, f.user, UpdateLogInput{Value: strPtr("lots")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_UpdateHabit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Walk", nil)
	f.completeOn(t, habit.ID, testNow, nil)

	updated, err := f.svc.UpdateHabit(ctx, habit.ID, f.user, UpdateHabitInput{
		Name: strPtr("Evening walk"),
		Logo: strPtr("🌙"),
		Unit: strPtr("steps"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Evening walk", updated.Name)
	assert.Equal(t, "🌙", updated.Logo)
	require.NotNil(t, updated.Unit)

	stored, err := f.repo.FindByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, "Evening walk", stored.Name)
	assert.Equal(t, 1, stored.Streak, "updates never touch the streak")

	_, err = f.svc.UpdateHabit(ctx, habit.ID, f.user, UpdateHabitInput{Name: strPtr("")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_DeleteHabitCascades(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Sleep early", nil)
	f.completeOn(t, habit.ID, daysAgo(1), nil)
	f.completeOn(t, habit.ID, testNow, nil)

	require.NoError(t, f.svc.DeleteHabit(ctx, habit.ID, f.user))

	_, err := f.repo.FindByID(ctx, habit.ID)
	assert.ErrorIs(t, err, ErrHabitNotFound)

	logs, err := f.repo.FindLogs(ctx, habit.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestService_StatisticsAreCachedAndInvalidated(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Practice piano", nil)
	f.completeOn(t, habit.ID, testNow, nil)

	stats, err := f.svc.GetHabitStatistics(ctx, habit.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalLogs)

	key := "habits:stats:" + f.user.String() + ":" + habit.ID.String() + ":2024-03-15"
	raw, err := f.cache.Get(ctx, key)
	require.NoError(t, err)
	var cached HabitStatistics
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, 1, cached.TotalLogs)

	f.completeOn(t, habit.ID, testNow.Add(time.Minute), nil)
	_, err = f.cache.Get(ctx, key)
	assert.Error(t, err, "a completion drops the cached statistics")

	stats, err = f.svc.GetHabitStatistics(ctx, habit.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLogs)

	require.NotEmpty(t, f.cache.published)
	assert.Equal(t, events.HabitEventCompleted, f.cache.published[len(f.cache.published)-1].EventType)
}

func TestService_GetAllHabitsStatistics(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	steady := f.createHabit(t, "Steady", nil)
	sporadic := f.createHabit(t, "Sporadic", nil)

	f.completeOn(t, steady.ID, daysAgo(2), nil)
	f.completeOn(t, steady.ID, daysAgo(1), nil)
	f.completeOn(t, steady.ID, daysAgo(0), nil)
	f.completeOn(t, sporadic.ID, daysAgo(5), nil)
	f.clock.Set(testNow)

	summary, err := f.svc.GetAllHabitsStatistics(ctx, f.user)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalHabits)
	assert.Equal(t, 4, summary.TotalLogs)
	require.NotNil(t, summary.MostConsistentHabitID)
	assert.Equal(t, steady.ID, *summary.MostConsistentHabitID)
	assert.Equal(t, 3, summary.Habits[0].CurrentStreak)
	assert.Equal(t, 1, summary.Habits[1].CurrentStreak)

	// a lapsed chain keeps its length and is left as stored
	stored, err := f.repo.FindByID(ctx, sporadic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)
}

func TestService_ReconcileStreaks(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	edited := f.createHabit(t, "Edited", nil)
	lapsed := f.createHabit(t, "Lapsed", nil)

	f.completeOn(t, edited.ID, daysAgo(5), nil)
	middle := f.completeOn(t, edited.ID, daysAgo(4), nil)
	f.completeOn(t, edited.ID, daysAgo(3), nil)
	f.completeOn(t, lapsed.ID, daysAgo(6), nil)
	f.completeOn(t, lapsed.ID, daysAgo(5), nil)
	f.clock.Set(testNow)
	require.NoError(t, f.svc.DeleteHabitLog(ctx, middle.Log.ID, f.user))

	repaired, err := f.svc.ReconcileStreaks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	// the gap left by the deleted log splits the chain
	stored, err := f.repo.FindByID(ctx, edited.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)

	stored, err = f.repo.FindByID(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Streak)

	repaired, err = f.svc.ReconcileStreaks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}

func TestService_GetHeatmapAndActivity(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "Swim", strPtr("laps"))
	f.completeOn(t, habit.ID, testNow, strPtr("20"))

	hm, err := f.svc.GetHeatmap(ctx, habit.ID, f.user)
	require.NoError(t, err)
	last := hm.Cells[len(hm.Cells)-1]
	assert.Equal(t, 1, last.Count)
	require.NotNil(t, last.Value)
	assert.Equal(t, 20.0, *last.Value)

	key := "habits:heatmap:" + f.user.String() + ":" + habit.ID.String() + ":2024-03-15"
	_, err = f.cache.Get(ctx, key)
	require.NoError(t, err, "heatmaps are cached per calendar day")

	// the next day reads a fresh grid
	f.clock.Set(testNow.Add(24 * time.Hour))
	hm, err = f.svc.GetHeatmap(ctx, habit.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-16", hm.End)
	assert.Equal(t, 0, hm.Cells[len(hm.Cells)-1].Count)
	f.clock.Set(testNow)

	activities, total, err := f.svc.GetHabitActivity(ctx, habit.ID, f.user, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	actions := []string{activities[0].Action, activities[1].Action}
	assert.ElementsMatch(t, []string{ActionHabitCreated, ActionHabitCompleted}, actions)
}

func TestService_StreakMilestone(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	habit := f.createHabit(t, "No sugar", nil)

	for i := 6; i >= 0; i-- {
		f.completeOn(t, habit.ID, daysAgo(i), nil)
	}

	action := ActionStreakMilestone
	milestones, _, err := f.repo.ListActivities(ctx, ActivityFilter{HabitID: &habit.ID, Action: &action})
	require.NoError(t, err)
	require.Len(t, milestones, 1)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(milestones[0].Metadata, &meta))
	assert.Equal(t, float64(7), meta["streak"])
}
