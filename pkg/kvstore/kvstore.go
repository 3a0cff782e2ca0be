// Package kvstore 是 Badger 的薄封装：挂单存储、事件日志与开发网密钥共用。
package kvstore

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotOpened 未打开
var ErrNotOpened = errors.New("kvstore: not opened")

// Store Badger KV 封装
// 加密由 Badger 自身提供（value log + key registry），不是本封装实现的。
type Store struct {
	db *badger.DB
}

// OpenOptions 打开参数
type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes；为空则不加密
	ReadOnly      bool
	InMemory      bool // 测试用，忽略 Path
}

// Open 打开 Badger
func Open(opts OpenOptions) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("kvstore: path is required")
		}
		bopts = badger.DefaultOptions(opts.Path).WithReadOnly(opts.ReadOnly)
	}
	bopts = bopts.WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求开启 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close 关闭
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// View 只读事务
func (s *Store) View(fn func(txn *badger.Txn) error) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	return s.db.View(fn)
}

// Update 读写事务（Badger 的 SSI 保证事务内读写原子）
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	return s.db.Update(fn)
}

// GetBytes 读取 key，不存在时 found=false
func (s *Store) GetBytes(key []byte) (val []byte, found bool, err error) {
	err = s.View(func(txn *badger.Txn) error {
		var e error
		val, found, e = TxnGet(txn, key)
		return e
	})
	return val, found, err
}

// GetString 读取字符串值
func (s *Store) GetString(key string) (string, bool, error) {
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("kvstore: key is empty")
	}
	v, ok, err := s.GetBytes(k)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

// SetString 写入字符串值
func (s *Store) SetString(key string, val string) error {
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("kvstore: key is empty")
	}
	return s.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// TxnGet 在事务内读取 key 的拷贝
func TxnGet(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// TxnGetUint64 读取大端 uint64 计数器，不存在视为 0
func TxnGetUint64(txn *badger.Txn, key []byte) (uint64, error) {
	v, ok, err := TxnGet(txn, key)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("kvstore: counter %q has %d bytes", key, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// TxnSetUint64 写入大端 uint64 计数器
func TxnSetUint64(txn *badger.Txn, key []byte, n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return txn.Set(key, buf[:])
}

// SeqKey prefix + 大端序号，保证字典序 == 数值序
func SeqKey(prefix string, n uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], n)
	return k
}

// ParseKey 解析 32 字节加密密钥（hex 或 base64），空串返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// 优先按 hex 解析，避免把 hex 串误当 base64
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
