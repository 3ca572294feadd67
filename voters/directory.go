package voters

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Entry 选民名册中的一条记录
type Entry struct {
	ID       string `toml:"id" validate:"required,alphanum,max=32"`
	Name     string `toml:"name" validate:"required,max=128"`
	Password string `toml:"password" validate:"required,min=4"`
}

type file struct {
	Voters []Entry `toml:"voter" validate:"required,min=1,dive"`
}

// Directory 静态选民名册，键为大写ID
type Directory struct {
	entries map[string]Entry
}

var validate = validator.New()

// NewDirectory 由记录列表构建名册，ID统一转为大写
func NewDirectory(entries []Entry) *Directory {
	d := &Directory{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.ID = NormalizeID(e.ID)
		d.entries[e.ID] = e
	}
	return d
}

// LoadFile 从TOML文件加载名册
//
//	[[voter]]
//	id = "23BCS01"
//	name = "Asha"
//	password = "kpr2301"
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取选民名册失败: %w", err)
	}

	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析选民名册失败: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("选民名册校验失败: %w", err)
	}

	seen := make(map[string]bool, len(f.Voters))
	for _, e := range f.Voters {
		id := NormalizeID(e.ID)
		if seen[id] {
			return nil, fmt.Errorf("选民名册中存在重复ID: %s", id)
		}
		seen[id] = true
	}

	return NewDirectory(f.Voters), nil
}

// Lookup 按ID查找选民
func (d *Directory) Lookup(id string) (Entry, bool) {
	e, ok := d.entries[NormalizeID(id)]
	return e, ok
}

// Verify 校验ID和密码，返回匹配的记录
func (d *Directory) Verify(id, password string) (Entry, bool) {
	e, ok := d.Lookup(id)
	if !ok {
		return Entry{}, false
	}
	if subtle.ConstantTimeCompare([]byte(e.Password), []byte(password)) != 1 {
		return Entry{}, false
	}
	return e, true
}

// Len 名册人数
func (d *Directory) Len() int {
	return len(d.entries)
}

// NormalizeID 去除首尾空白并转为大写
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
