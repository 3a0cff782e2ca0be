// Package persistence 基于 JSON 文件的状态快照。
//
// 结构体字段打上 `persistence:"<tag>"` 后，可用 SaveFields/LoadFields 按字段落盘，
// 每个字段一个文件：<baseDir>/state_<id>_<tag>.json。
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "persistence")

// ErrNotExists 数据不存在
var ErrNotExists = errors.New("persistence data not exists")

// Service 持久化服务
type Service interface {
	NewStore(prefix, id, tag string) Store
}

// Store 单个 key 的存取
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// JSONFileService 以目录为根的 JSON 文件服务
type JSONFileService struct {
	baseDir string
}

func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

// BaseDir 根目录
func (s *JSONFileService) BaseDir() string { return s.baseDir }

func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &JSONFileStore{baseDir: s.baseDir, key: prefix + ":" + id + ":" + tag}
}

// JSONFileStore 单个 JSON 文件
type JSONFileStore struct {
	baseDir string
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Path 文件路径（key 中的非法字符替换为 _）
func (s *JSONFileStore) Path() string {
	return filepath.Join(s.baseDir, keySanitizer.ReplaceAllString(s.key, "_")+".json")
}

// Save 先写临时文件再 rename，避免半截文件
func (s *JSONFileStore) Save(data interface{}) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	path := s.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	log.Debugf("保存快照: %s (%d bytes)", path, len(b))
	return os.Rename(tmp, path)
}

// Load 文件不存在或为空返回 ErrNotExists
func (s *JSONFileStore) Load(data interface{}) error {
	b, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

// SaveFields 保存 obj 中所有带 persistence tag 的字段
func SaveFields(obj interface{}, id string, service Service) error {
	return eachTaggedField(obj, func(tag string, field reflect.StructField, value reflect.Value) error {
		if err := service.NewStore("state", id, tag).Save(value.Interface()); err != nil {
			return fmt.Errorf("save %s: %w", field.Name, err)
		}
		return nil
	})
}

// LoadFields 加载带 persistence tag 的字段；缺失的文件保持字段原值。
// 返回实际加载的字段数。
func LoadFields(obj interface{}, id string, service Service) (int, error) {
	loaded := 0
	err := eachTaggedField(obj, func(tag string, field reflect.StructField, value reflect.Value) error {
		ptr := reflect.New(value.Type())
		if err := service.NewStore("state", id, tag).Load(ptr.Interface()); err != nil {
			if errors.Is(err, ErrNotExists) {
				log.Debugf("快照不存在: id=%s tag=%s", id, tag)
				return nil
			}
			return fmt.Errorf("load %s: %w", field.Name, err)
		}
		value.Set(ptr.Elem())
		loaded++
		return nil
	})
	return loaded, err
}

// eachTaggedField 遍历导出字段（含嵌套结构体）
func eachTaggedField(obj interface{}, fn func(tag string, field reflect.StructField, value reflect.Value) error) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.New("persistence: object must be a non-nil pointer to struct")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return errors.New("persistence: object must be a non-nil pointer to struct")
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, value := t.Field(i), v.Field(i)
		if !value.CanSet() {
			continue
		}
		tag := strings.Split(field.Tag.Get("persistence"), ",")[0]
		if tag == "" || tag == "-" {
			if value.Kind() == reflect.Struct {
				if err := eachTaggedField(value.Addr().Interface(), fn); err != nil {
					return err
				}
			}
			continue
		}
		if err := fn(tag, field, value); err != nil {
			return err
		}
	}
	return nil
}
