package blob_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/quillsec/quill/internal/tester"
	"github.com/stretchr/testify/assert"
)

func TestPutOpenRoundTrip(t *testing.T) {
	tester.Setup()
	blobs := tester.Blobs()
	ctx := context.TODO()

	digest, size, err := blobs.Put(ctx, strings.NewReader("attachment bytes"))
	assert.NoError(t, err)
	assert.Equal(t, int64(len("attachment bytes")), size)

	rc, err := blobs.Open(ctx, digest)
	assert.NoError(t, err)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())
	assert.Equal(t, "attachment bytes", string(data))
}

func TestPutDeduplicates(t *testing.T) {
	tester.Setup()
	blobs := tester.Blobs()
	ctx := context.TODO()

	d1, _, err := blobs.Put(ctx, strings.NewReader("same content"))
	assert.NoError(t, err)
	d2, _, err := blobs.Put(ctx, strings.NewReader("same content"))
	assert.NoError(t, err)
	assert.Equal(t, d1, d2)

	// two references: dropping one keeps the content readable
	assert.NoError(t, blobs.Decref(ctx, d1))
	rc, err := blobs.Open(ctx, d1)
	assert.NoError(t, err)
	assert.NoError(t, rc.Close())

	// dropping the last one makes it unreadable
	assert.NoError(t, blobs.Decref(ctx, d1))
	_, err = blobs.Open(ctx, d1)
	assert.Error(t, err)
}

func TestIncrefDecref(t *testing.T) {
	tester.Setup()
	blobs := tester.Blobs()
	ctx := context.TODO()

	digest, _, err := blobs.Put(ctx, strings.NewReader("shared"))
	assert.NoError(t, err)
	assert.NoError(t, blobs.Incref(ctx, digest))

	assert.NoError(t, blobs.Decref(ctx, digest))
	_, err = blobs.Open(ctx, digest)
	assert.NoError(t, err)

	assert.NoError(t, blobs.Decref(ctx, digest))
	_, err = blobs.Open(ctx, digest)
	assert.Error(t, err)

	// no reference left: physical cleanup succeeds and is idempotent
	assert.NoError(t, blobs.RemoveIfUnreferenced(ctx, digest))
	assert.NoError(t, blobs.RemoveIfUnreferenced(ctx, digest))
}

func TestDecrefUnknownDigest(t *testing.T) {
	tester.Setup()
	blobs := tester.Blobs()

	err := blobs.Decref(context.TODO(), "deadbeef")
	assert.Error(t, err)
}
