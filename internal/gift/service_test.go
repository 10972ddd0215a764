package gift

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/epikoding/giftpool/internal/model"
	"github.com/epikoding/giftpool/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "hunter2"

func newTestService(t *testing.T, opts Options) (*Service, store.SessionStore) {
	t.Helper()
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	return NewService(st, opts), st
}

func createScenarioSession(t *testing.T, svc *Service) string {
	t.Helper()
	id, err := svc.CreateSession(context.Background(), CreateSessionInput{
		OrganizerName:         "Olivia",
		GiftName:              "Wireless Headphones",
		GiftLink:              "https://example.com/headphones",
		GiftPrice:             d("100.00"),
		OrganizerContribution: d("20.00"),
		ExpectedParticipants:  4,
		OrganizerSecret:       testSecret,
	})
	require.NoError(t, err)
	return id
}

func TestCreateSessionSeedsOrganizer(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	id := createScenarioSession(t, svc)
	assert.Len(t, id, sessionIDLength)

	view, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.OrganizerSecret)
	assert.False(t, view.IsComplete)
	require.Len(t, view.Participants, 1)
	org := view.Participants[0]
	assert.True(t, org.IsOrganizer)
	assert.Equal(t, "Olivia", org.Name)
	assert.Equal(t, "20.00", org.Contribution.StringFixed(2))
	assert.Equal(t, "20.00", view.TotalContributed.StringFixed(2))
	assert.Equal(t, "80.00", view.Remaining.StringFixed(2))
	assert.Equal(t, 20, view.Progress)
	assert.Equal(t, "25.00", view.SuggestedContribution.Recommended.StringFixed(2))
}

func TestCreateSessionOrganizerCoversPrice(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx, CreateSessionInput{
		OrganizerName:         "Olivia",
		GiftName:              "Book",
		GiftPrice:             d("15.00"),
		OrganizerContribution: d("20.00"),
		ExpectedParticipants:  1,
		OrganizerSecret:       testSecret,
	})
	require.NoError(t, err)

	view, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.IsComplete)
	assert.Equal(t, "5.00", view.Participants[0].RefundAmount.StringFixed(2))
	assert.Nil(t, view.GiftLink)
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	base := CreateSessionInput{
		OrganizerName:         "Olivia",
		GiftName:              "Book",
		GiftPrice:             d("15.00"),
		OrganizerContribution: d("0"),
		ExpectedParticipants:  1,
		OrganizerSecret:       testSecret,
	}

	cases := map[string]func(in *CreateSessionInput){
		"organizerName":         func(in *CreateSessionInput) { in.OrganizerName = "  " },
		"giftName":              func(in *CreateSessionInput) { in.GiftName = "" },
		"giftLink":              func(in *CreateSessionInput) { in.GiftLink = "not a url" },
		"giftPrice":             func(in *CreateSessionInput) { in.GiftPrice = d("0") },
		"organizerContribution": func(in *CreateSessionInput) { in.OrganizerContribution = d("-1") },
		"expectedParticipants":  func(in *CreateSessionInput) { in.ExpectedParticipants = 0 },
		"organizerSecret":       func(in *CreateSessionInput) { in.OrganizerSecret = "abc" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := svc.CreateSession(context.Background(), in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Field)
		})
	}

	t.Run("sub-cent price", func(t *testing.T) {
		in := base
		in.GiftPrice = d("10.005")
		_, err := svc.CreateSession(context.Background(), in)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestCreateSessionRetriesOnIDCollision(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ids := []string{"AAAAAAAAAA", "AAAAAAAAAA", "BBBBBBBBBB"}
	var calls int32
	svc.newID = func() (string, error) {
		n := atomic.AddInt32(&calls, 1)
		return ids[n-1], nil
	}

	first := createScenarioSession(t, svc)
	second := createScenarioSession(t, svc)

	assert.Equal(t, "AAAAAAAAAA", first)
	assert.Equal(t, "BBBBBBBBBB", second)
	assert.Equal(t, int32(3), calls)
}

func TestScenarioContributionsCompleteSession(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	jane, err := svc.AddParticipant(ctx, id, "Jane", d("50.00"))
	require.NoError(t, err)
	assert.NotZero(t, jane.ID)
	assert.False(t, jane.IsOrganizer)
	assert.True(t, jane.RefundAmount.IsZero())

	mike, err := svc.AddParticipant(ctx, id, "Mike", d("40.00"))
	require.NoError(t, err)
	assert.Greater(t, mike.ID, jane.ID)

	view, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.IsComplete)
	assert.Equal(t, 100, view.Progress)
	assert.True(t, view.Remaining.IsZero())
	got := map[string]string{}
	for _, p := range view.Participants {
		got[p.Name] = p.RefundAmount.StringFixed(2)
	}
	assert.Equal(t, map[string]string{"Olivia": "0.00", "Jane": "10.00", "Mike": "0.00"}, got)
}

func TestScenarioRemovalReopensSession(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	_, err := svc.AddParticipant(ctx, id, "Jane", d("50.00"))
	require.NoError(t, err)
	mike, err := svc.AddParticipant(ctx, id, "Mike", d("40.00"))
	require.NoError(t, err)

	removed, err := svc.RemoveParticipant(ctx, mike.ID, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "Mike", removed.Name)

	view, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, view.IsComplete)
	require.Len(t, view.Participants, 2)
	for _, p := range view.Participants {
		assert.True(t, p.RefundAmount.IsZero(), p.Name)
	}

	// Reopened sessions accept contributions again.
	_, err = svc.AddParticipant(ctx, id, "Mike", d("30.00"))
	require.NoError(t, err)
}

func TestAddParticipantDuplicateName(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	_, err := svc.AddParticipant(ctx, id, "Jane", d("10.00"))
	require.NoError(t, err)

	_, err = svc.AddParticipant(ctx, id, "Jane", d("15.00"))
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Matching is exact by default.
	_, err = svc.AddParticipant(ctx, id, "jane", d("15.00"))
	assert.NoError(t, err)

	sess, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sess.Participants, 3)
	assert.Equal(t, "45.00", sess.Total().StringFixed(2))
}

func TestAddParticipantFoldedNames(t *testing.T) {
	svc, _ := newTestService(t, Options{FoldNames: true})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	_, err := svc.AddParticipant(ctx, id, "Jane", d("10.00"))
	require.NoError(t, err)
	_, err = svc.AddParticipant(ctx, id, "JANE", d("10.00"))
	assert.ErrorIs(t, err, ErrDuplicateName)

	exists, err := svc.ParticipantExists(ctx, id, "jAnE")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddParticipantClosedSession(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	_, err := svc.AddParticipant(ctx, id, "Jane", d("80.00"))
	require.NoError(t, err)

	before, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, before.IsComplete)

	_, err = svc.AddParticipant(ctx, id, "Late", d("5.00"))
	assert.ErrorIs(t, err, ErrSessionClosed)

	after, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, after.Participants, len(before.Participants))
}

func TestAddParticipantErrors(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	_, err := svc.AddParticipant(ctx, "missing", "Jane", d("10"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AddParticipant(ctx, id, "Jane", d("0"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "contribution", verr.Field)

	_, err = svc.AddParticipant(ctx, id, "", d("10"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestConcurrentJoinsWithSameName(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	var (
		wg        sync.WaitGroup
		succeeded int32
		dupes     int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddParticipant(ctx, id, "Jane", d("1.00"))
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, ErrDuplicateName):
				atomic.AddInt32(&dupes, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(19), dupes)

	sess, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sess.Participants, 2)
}

func TestConcurrentJoinsNeverOverfund(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddParticipant(ctx, id, fmt.Sprintf("p%d", i), d("7.00"))
			if err != nil && !errors.Is(err, ErrSessionClosed) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.IsComplete)
	// 20 + 12*7 = 104 is the first total at or above 100
	assert.Len(t, sess.Participants, 13)
	assert.Empty(t, Check(sess, PolicyRecompute))
}

func TestUpdateSession(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)
	_, err := svc.AddParticipant(ctx, id, "Jane", d("50.00"))
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		name := "Other"
		err := svc.UpdateSession(ctx, id, "nope", UpdateSessionInput{GiftName: &name})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown session fails closed", func(t *testing.T) {
		name := "Other"
		err := svc.UpdateSession(ctx, "missing", testSecret, UpdateSessionInput{GiftName: &name})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("partial update leaves other fields", func(t *testing.T) {
		name := "Noise Cancelling Headphones"
		require.NoError(t, svc.UpdateSession(ctx, id, testSecret, UpdateSessionInput{GiftName: &name}))

		sess, err := st.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, name, sess.GiftName)
		require.NotNil(t, sess.GiftLink)
		assert.Equal(t, "https://example.com/headphones", *sess.GiftLink)
		assert.Equal(t, "100.00", sess.GiftPrice.StringFixed(2))
	})

	t.Run("organizer contribution syncs participant and completes", func(t *testing.T) {
		amount := d("60.00")
		require.NoError(t, svc.UpdateSession(ctx, id, testSecret, UpdateSessionInput{OrganizerContribution: &amount}))

		sess, err := st.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "60.00", sess.OrganizerContribution.StringFixed(2))
		assert.Equal(t, "60.00", sess.Organizer().Contribution.StringFixed(2))
		assert.True(t, sess.IsComplete)
		// 110 against 100: organizer (60) is the largest contributor
		assert.Equal(t, "10.00", sess.Organizer().RefundAmount.StringFixed(2))
		assert.Empty(t, Check(sess, PolicyRecompute))
	})

	t.Run("price increase reopens", func(t *testing.T) {
		price := d("200.00")
		require.NoError(t, svc.UpdateSession(ctx, id, testSecret, UpdateSessionInput{GiftPrice: &price}))

		sess, err := st.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, sess.IsComplete)
		assert.True(t, sess.TotalRefunded().IsZero())
	})

	t.Run("empty link clears it", func(t *testing.T) {
		empty := ""
		require.NoError(t, svc.UpdateSession(ctx, id, testSecret, UpdateSessionInput{GiftLink: &empty}))

		sess, err := st.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, sess.GiftLink)
	})

	t.Run("invalid price", func(t *testing.T) {
		price := d("-5")
		err := svc.UpdateSession(ctx, id, testSecret, UpdateSessionInput{GiftPrice: &price})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestDeleteSession(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)
	jane, err := svc.AddParticipant(ctx, id, "Jane", d("10.00"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteSession(ctx, id, "wrong"), ErrUnauthorized)
	assert.ErrorIs(t, svc.DeleteSession(ctx, "missing", testSecret), ErrNotFound)

	require.NoError(t, svc.DeleteSession(ctx, id, testSecret))

	_, err = svc.GetSession(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.FindParticipant(ctx, jane.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestValidateOrganizer(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	ok, err := svc.ValidateOrganizer(ctx, id, testSecret)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ValidateOrganizer(ctx, id, testSecret+"x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ValidateOrganizer(ctx, id, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ValidateOrganizer(ctx, "missing", testSecret)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveParticipantRules(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)
	other := createScenarioSession(t, svc)
	jane, err := svc.AddParticipant(ctx, id, "Jane", d("10.00"))
	require.NoError(t, err)

	_, err = svc.RemoveParticipant(ctx, 9999, testSecret)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RemoveParticipant(ctx, jane.ID, "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.RemoveSessionParticipant(ctx, other, jane.ID, testSecret)
	assert.ErrorIs(t, err, ErrNotFound)

	view, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	_, err = svc.RemoveParticipant(ctx, view.Participants[0].ID, testSecret)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	removed, err := svc.RemoveSessionParticipant(ctx, id, jane.ID, testSecret)
	require.NoError(t, err)
	assert.Equal(t, jane.ID, removed.ID)
}

func TestParticipantExists(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)
	_, err := svc.AddParticipant(ctx, id, "Jane", d("10.00"))
	require.NoError(t, err)

	exists, err := svc.ParticipantExists(ctx, id, "Jane")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.ParticipantExists(ctx, id, "jane")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = svc.ParticipantExists(ctx, "missing", "Jane")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLegacyPolicyService(t *testing.T) {
	svc, st := newTestService(t, Options{Policy: PolicyLegacy})
	ctx := context.Background()
	id := createScenarioSession(t, svc)
	_, err := svc.AddParticipant(ctx, id, "Jane", d("50.00"))
	require.NoError(t, err)
	mike, err := svc.AddParticipant(ctx, id, "Mike", d("40.00"))
	require.NoError(t, err)

	_, err = svc.RemoveParticipant(ctx, mike.ID, testSecret)
	require.NoError(t, err)

	sess, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.IsComplete)
	assert.Empty(t, Check(sess, PolicyLegacy))
	assert.NotEmpty(t, Check(sess, PolicyRecompute))
}

func TestRecomputeRepairsStoredSession(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	// Simulate drift written by an older one-shot build.
	_, err := st.Update(ctx, id, func(sess *model.Session) error {
		sess.IsComplete = true
		sess.Participants[0].RefundAmount = d("5.00")
		return nil
	})
	require.NoError(t, err)

	issues, err := svc.Audit(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, issues)

	sess, err := svc.Recompute(ctx, id)
	require.NoError(t, err)
	assert.False(t, sess.IsComplete)

	issues, err = svc.Audit(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, issues)

	ids, err := svc.SessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes++
	return nil
}

func TestGetSessionUsesCacheAndInvalidates(t *testing.T) {
	cache := newMemoryCache()
	svc, _ := newTestService(t, Options{Cache: cache})
	ctx := context.Background()
	id := createScenarioSession(t, svc)

	view, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, view.Participants, 1)

	cached, err := cache.Get(ctx, cacheKey(id))
	require.NoError(t, err)
	assert.NotContains(t, string(cached), testSecret)

	// Served from cache
	again, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, view.SessionID, again.SessionID)
	assert.True(t, again.TotalContributed.Equal(decimal.RequireFromString("20")))

	_, err = svc.AddParticipant(ctx, id, "Jane", d("10.00"))
	require.NoError(t, err)
	_, err = cache.Get(ctx, cacheKey(id))
	assert.Error(t, err)

	fresh, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, fresh.Participants, 2)
}

func TestReconcileSkipsWriteWhenSettled(t *testing.T) {
	cache := newMemoryCache()
	svc, st := newTestService(t, Options{Cache: cache})
	ctx := context.Background()
	id := createScenarioSession(t, svc)
	_, err := svc.AddParticipant(ctx, id, "Jane", d("90.00"))
	require.NoError(t, err)

	_, err = svc.GetSession(ctx, id)
	require.NoError(t, err)
	before, err := st.Get(ctx, id)
	require.NoError(t, err)
	deletes := cache.deletes

	changed, err := svc.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, deletes, cache.deletes)
	_, err = cache.Get(ctx, cacheKey(id))
	assert.NoError(t, err)

	sess, err := svc.Recompute(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.IsComplete)
	assert.Equal(t, "10.00", sess.Participants[1].RefundAmount.StringFixed(2))

	// Drifted state is written back and the cached view dropped.
	_, err = st.Update(ctx, id, func(s *model.Session) error {
		s.Participants[1].RefundAmount = d("0")
		return nil
	})
	require.NoError(t, err)

	changed, err = svc.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = cache.Get(ctx, cacheKey(id))
	assert.Error(t, err)

	fixed, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "10.00", fixed.Participants[1].RefundAmount.StringFixed(2))

	_, err = svc.Reconcile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
