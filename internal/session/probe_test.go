package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gaming_queue/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	ids   map[int]uint
	err   error
	asked []int
}

func (d *fakeDirectory) UserIDsByGizmoIDs(_ context.Context, gizmoIDs []int) ([]uint, error) {
	d.asked = gizmoIDs
	if d.err != nil {
		return nil, d.err
	}
	var out []uint
	for _, g := range gizmoIDs {
		if id, ok := d.ids[g]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestGizmoProbeMapsActiveSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usersessions/active", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		w.Write([]byte(`{"result":[{"userId":11,"hostId":1},{"userId":12,"hostId":2},{"userId":11,"hostId":3},{"userId":99,"hostId":4}]}`))
	}))
	defer srv.Close()

	dir := &fakeDirectory{ids: map[int]uint{11: 1, 12: 2}}
	p := NewGizmoProbe(srv.URL+"/", "admin:secret", srv.Client(), dir)

	active, err := p.ActiveUserIDs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[uint]struct{}{1: {}, 2: {}}, active)
	assert.Equal(t, []int{11, 12, 99}, dir.asked)
}

func TestGizmoProbeEmptyClub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	p := NewGizmoProbe(srv.URL, "a:b", srv.Client(), &fakeDirectory{})

	active, err := p.ActiveUserIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGizmoProbeFailuresAreUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewGizmoProbe(srv.URL, "a:b", srv.Client(), &fakeDirectory{}).ActiveUserIDs(context.Background())
			assert.ErrorIs(t, err, queue.ErrProbeUnavailable)
		})
	}

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewGizmoProbe(url, "a:b", nil, &fakeDirectory{}).ActiveUserIDs(context.Background())
		assert.ErrorIs(t, err, queue.ErrProbeUnavailable)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewGizmoProbe("", "", nil, &fakeDirectory{}).ActiveUserIDs(context.Background())
		assert.ErrorIs(t, err, queue.ErrProbeUnavailable)
	})

	t.Run("directory", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"result":[{"userId":1}]}`))
		}))
		defer srv.Close()

		dir := &fakeDirectory{err: errors.New("db down")}
		_, err := NewGizmoProbe(srv.URL, "a:b", srv.Client(), dir).ActiveUserIDs(context.Background())
		assert.ErrorIs(t, err, queue.ErrProbeUnavailable)
	})
}
