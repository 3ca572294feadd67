package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PhotoBucket 候选人照片的存储桶名
const PhotoBucket = "candidate-photos"

// Bucket 对象存储接口
type Bucket interface {
	// Put 写入对象，返回公开访问URL
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
	// ObjectName 从公开URL中取出对象名
	ObjectName(url string) (string, bool)
}

// DiskBucket 本地磁盘上的存储桶，目录由静态文件路由公开
type DiskBucket struct {
	dir     string
	baseURL string
}

// NewDiskBucket 在root/bucket下创建存储桶，publicBase为对外URL前缀
func NewDiskBucket(root, bucket, publicBase string) (*DiskBucket, error) {
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &DiskBucket{
		dir:     dir,
		baseURL: strings.TrimRight(publicBase, "/") + "/uploads/" + bucket + "/",
	}, nil
}

// Put 写入文件，先写临时文件再改名
func (b *DiskBucket) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("非法对象名: %q", name)
	}

	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("写入文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.dir, name)); err != nil {
		return "", fmt.Errorf("保存文件失败: %w", err)
	}

	return b.baseURL + name, nil
}

// Delete 删除对象，不存在时忽略
func (b *DiskBucket) Delete(_ context.Context, name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("非法对象名: %q", name)
	}
	err := os.Remove(filepath.Join(b.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ObjectName 从公开URL中取出对象名，不属于该桶时返回false
func (b *DiskBucket) ObjectName(url string) (string, bool) {
	if !strings.HasPrefix(url, b.baseURL) {
		return "", false
	}
	return strings.TrimPrefix(url, b.baseURL), true
}
