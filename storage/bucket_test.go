package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskBucket_PutDelete(t *testing.T) {
	root := t.TempDir()
	b, err := NewDiskBucket(root, PhotoBucket, "http://localhost:8090/")
	require.NoError(t, err)

	ctx := context.Background()
	url, err := b.Put(ctx, "1700000000000-abcd1234.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090/uploads/candidate-photos/1700000000000-abcd1234.png", url)

	data, err := os.ReadFile(filepath.Join(root, PhotoBucket, "1700000000000-abcd1234.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	name, ok := b.ObjectName(url)
	require.True(t, ok)
	require.NoError(t, b.Delete(ctx, name))
	_, err = os.Stat(filepath.Join(root, PhotoBucket, name))
	assert.True(t, os.IsNotExist(err))

	// 再次删除不报错
	assert.NoError(t, b.Delete(ctx, name))
}

func TestDiskBucket_RejectsPathTraversal(t *testing.T) {
	b, err := NewDiskBucket(t.TempDir(), PhotoBucket, "http://localhost:8090")
	require.NoError(t, err)

	_, err = b.Put(context.Background(), "../escape.png", strings.NewReader("x"))
	assert.Error(t, err)

	_, ok := b.ObjectName("https://elsewhere.example/x.png")
	assert.False(t, ok)
}
