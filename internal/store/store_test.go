package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
	"github.com/quillsec/quill/internal/tester"
)

func TestBlobRefCounting(t *testing.T) {
	tester.Setup()
	st := tester.TestStore()
	ctx := context.TODO()

	digest := "aa00"
	assert.NoError(t, st.IncrefBlob(ctx, digest, 42))
	b, err := st.GetBlob(ctx, digest)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), b.RefCount)
	assert.Equal(t, int64(42), b.Size)

	// repeated increfs upsert onto the same row
	assert.NoError(t, st.IncrefBlob(ctx, digest, 42))
	b, err = st.GetBlob(ctx, digest)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), b.RefCount)

	remaining, err := st.DecrefBlob(ctx, digest)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	// the record disappears at zero
	remaining, err = st.DecrefBlob(ctx, digest)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
	_, err = st.GetBlob(ctx, digest)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.DecrefBlob(ctx, digest)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLockColumns(t *testing.T) {
	tester.Setup()
	st := tester.TestStore()
	ctx := context.TODO()

	ptype := &model.ProjectType{ID: uuid.NewString(), Name: "design"}
	assert.NoError(t, st.CreateProjectType(ctx, ptype))

	l, err := st.GetLock(ctx, "project_types", ptype.ID)
	assert.NoError(t, err)
	assert.Nil(t, l.LockedByID)

	userID := uuid.NewString()
	now := time.Now()
	ok, err := st.SetLock(ctx, "project_types", ptype.ID, l, &model.Lockable{
		LockedByID: &userID,
		LockedAt:   &now,
	})
	assert.NoError(t, err)
	assert.True(t, ok)

	l, err = st.GetLock(ctx, "project_types", ptype.ID)
	assert.NoError(t, err)
	assert.Equal(t, userID, *l.LockedByID)

	// a write based on a stale observation does not overwrite the lease
	other := uuid.NewString()
	ok, err = st.SetLock(ctx, "project_types", ptype.ID, &model.Lockable{}, &model.Lockable{
		LockedByID: &other,
		LockedAt:   &now,
	})
	assert.NoError(t, err)
	assert.False(t, ok)
	l, err = st.GetLock(ctx, "project_types", ptype.ID)
	assert.NoError(t, err)
	assert.Equal(t, userID, *l.LockedByID)

	ok, err = st.SetLock(ctx, "project_types", ptype.ID, l, &model.Lockable{})
	assert.NoError(t, err)
	assert.True(t, ok)
	l, err = st.GetLock(ctx, "project_types", ptype.ID)
	assert.NoError(t, err)
	assert.Nil(t, l.LockedByID)

	_, err = st.SetLock(ctx, "project_types", uuid.NewString(), &model.Lockable{}, &model.Lockable{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransactionRollback(t *testing.T) {
	tester.Setup()
	st := tester.TestStore()
	ctx := context.TODO()

	boom := errors.New("boom")
	id := uuid.NewString()
	err := st.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateProjectType(ctx, &model.ProjectType{ID: id, Name: "doomed"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetProjectType(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLinkedProjectTypeQueries(t *testing.T) {
	tester.Setup()
	st := tester.TestStore()
	ctx := context.TODO()

	projectID := uuid.NewString()
	ptype := &model.ProjectType{
		ID: uuid.NewString(), Name: "dep",
		Source: model.SourceImportedDependency, LinkedProjectID: &projectID,
	}
	assert.NoError(t, st.CreateProjectType(ctx, ptype))
	assert.NoError(t, st.CreateProject(ctx, &model.Project{
		ID: projectID, Name: "p", ProjectTypeID: ptype.ID,
	}))
	assert.NoError(t, st.CreateProject(ctx, &model.Project{
		ID: uuid.NewString(), Name: "other", ProjectTypeID: ptype.ID,
	}))

	linked, err := st.ListLinkedProjectTypes(ctx, projectID)
	assert.NoError(t, err)
	assert.Len(t, linked, 1)

	count, err := st.CountProjectsByType(ctx, ptype.ID, projectID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
