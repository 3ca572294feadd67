package service

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxPhotoSize 候选人照片的最大字节数
const MaxPhotoSize = 5 << 20

// 扩展名到MIME类型
var photoTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ValidatePhoto 校验照片的大小、扩展名和实际内容类型，返回小写扩展名
func ValidatePhoto(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", validationErr("photo is empty")
	}
	if len(data) > MaxPhotoSize {
		return "", validationErr("photo exceeds %d bytes", MaxPhotoSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := photoTypes[ext]
	if !ok {
		return "", validationErr("photo must be jpeg, jpg, png or webp")
	}

	detected := mimetype.Detect(data)
	if !detected.Is(want) {
		return "", validationErr("photo content is %s, expected %s", detected.String(), want)
	}
	return ext, nil
}

// PhotoObjectName 生成存储对象名: <毫秒时间戳>-<8位随机>.<扩展名>
func PhotoObjectName(now time.Time, ext string) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString()[:8], ext)
}
