package bugs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	gets  []string
	posts []string
	body  interface{}

	response []byte
	err      error
}

func (f *fakeTransport) Get(_ context.Context, path string) ([]byte, error) {
	f.gets = append(f.gets, path)
	return f.response, f.err
}

func (f *fakeTransport) Post(_ context.Context, path string, body interface{}) ([]byte, error) {
	f.posts = append(f.posts, path)
	f.body = body
	return f.response, f.err
}

func TestService_GetBugs(t *testing.T) {
	t.Run("decodes page and defaults pagination", func(t *testing.T) {
		page := domain.BugPage{
			Items:    []domain.Bug{{ID: "b-1", Title: "login broken"}, {ID: "b-2", Title: "timeout on save"}},
			Total:    2,
			Page:     1,
			PageSize: 10,
		}
		raw, err := json.Marshal(page)
		require.NoError(t, err)

		ft := &fakeTransport{response: raw}
		svc := NewService(logger.Mock(), ft)

		got, err := svc.GetBugs(context.Background(), domain.BugListQuery{})
		require.NoError(t, err)

		assert.Equal(t, []string{"/bugs/getbugs"}, ft.posts)
		sent, ok := ft.body.(domain.BugListQuery)
		require.True(t, ok)
		assert.Equal(t, 1, sent.Page)
		assert.Equal(t, 10, sent.PageSize)
		assert.Len(t, got.Items, 2)
		assert.Equal(t, "b-1", got.Items[0].ID)
	})

	t.Run("propagates transport error", func(t *testing.T) {
		ft := &fakeTransport{err: errors.New("service unavailable")}
		svc := NewService(logger.Mock(), ft)

		_, err := svc.GetBugs(context.Background(), domain.BugListQuery{Page: 1, PageSize: 50})
		assert.ErrorContains(t, err, "service unavailable")
	})

	t.Run("rejects malformed page payload", func(t *testing.T) {
		ft := &fakeTransport{response: []byte("not json")}
		svc := NewService(logger.Mock(), ft)

		_, err := svc.GetBugs(context.Background(), domain.BugListQuery{Page: 1, PageSize: 50})
		assert.ErrorContains(t, err, "could not decode bug page")
	})
}

func TestService_GetBugDetail(t *testing.T) {
	raw, err := json.Marshal(domain.Bug{ID: "b-9", Title: "crash on export", Status: "open"})
	require.NoError(t, err)

	ft := &fakeTransport{response: raw}
	svc := NewService(logger.Mock(), ft)

	bug, err := svc.GetBugDetail(context.Background(), "b-9")
	require.NoError(t, err)

	assert.Equal(t, []string{"/bugs/b-9"}, ft.gets)
	assert.Equal(t, "crash on export", bug.Title)
}

func TestService_ResolveBug(t *testing.T) {
	ft := &fakeTransport{response: []byte(`{}`)}
	svc := NewService(logger.Mock(), ft)

	err := svc.ResolveBug(context.Background(), "b-3", domain.BugResolution{
		Status:     domain.BugResolved,
		ResolvedBy: "triage-bot",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/bugs/b-3/resolve"}, ft.posts)
	sent, ok := ft.body.(domain.BugResolution)
	require.True(t, ok)
	assert.Equal(t, domain.BugResolved, sent.Status)
}

func TestService_BatchResolveBugs(t *testing.T) {
	t.Run("posts ids with resolution", func(t *testing.T) {
		ft := &fakeTransport{response: []byte(`{}`)}
		svc := NewService(logger.Mock(), ft)

		err := svc.BatchResolveBugs(context.Background(), []string{"b-1", "b-2"}, domain.BugResolution{
			Status:     domain.BugDuplicate,
			ResolvedBy: "triage-bot",
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"/bugs/batch/resolve"}, ft.posts)
		sent, ok := ft.body.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, []string{"b-1", "b-2"}, sent["bugIds"])
	})

	t.Run("rejects empty id list", func(t *testing.T) {
		ft := &fakeTransport{}
		svc := NewService(logger.Mock(), ft)

		err := svc.BatchResolveBugs(context.Background(), nil, domain.BugResolution{Status: domain.BugResolved})
		assert.ErrorContains(t, err, "no bug ids given")
		assert.Empty(t, ft.posts)
	})
}
