package registry

import (
	"fmt"
	"strings"

	"github.com/betbot/nftmarket/pkg/kvstore"
)

// Backend 存储后端名称
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendBadger = "badger"
)

// Options 存储选项
type Options struct {
	Backend       string // memory | sqlite | mysql | badger
	Path          string // sqlite 文件 / badger 目录
	DSN           string // mysql
	EncryptionKey string // badger 加密密钥（hex/base64，可选）
}

// Open 按配置打开存储后端
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendMySQL:
		return OpenMySQL(opts.DSN)
	case BackendBadger:
		key, err := kvstore.ParseKey(opts.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("badger encryption key: %w", err)
		}
		return OpenBadgerStore(kvstore.OpenOptions{Path: opts.Path, EncryptionKey: key})
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
