package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"

	"github.com/betbot/perpsession/pkg/logger"
)

// Service 快照存储工厂
type Service interface {
	NewStore(namespace, id string) Store
}

// Store 单个键的 JSON 快照
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 快照不存在
var ErrNotExists = errors.New("persistence data not exists")

func storeKey(namespace, id string) string {
	return fmt.Sprintf("%s:%s", namespace, id)
}

// JSONFileService 每个键一个 JSON 文件
type JSONFileService struct {
	baseDir string
}

func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

func (s *JSONFileService) NewStore(namespace, id string) Store {
	return &JSONFileStore{baseDir: s.baseDir, key: storeKey(namespace, id)}
}

// JSONFileStore 写临时文件后 rename，进程中途退出不会留下半个快照
type JSONFileStore struct {
	baseDir string
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Path 快照文件路径
func (s *JSONFileStore) Path() string {
	return filepath.Join(s.baseDir, keySanitizer.ReplaceAllString(s.key, "_")+".json")
}

func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] save key=%s", s.key)
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return errors.Wrap(err, "create state dir")
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal %s", s.key)
	}
	path := s.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}

func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] load key=%s", s.key)
	b, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return errors.Wrapf(err, "read %s", s.key)
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return errors.Wrapf(json.Unmarshal(b, data), "unmarshal %s", s.key)
}

// MemoryService 进程内快照（不落盘）
type MemoryService struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryService() *MemoryService {
	return &MemoryService{data: make(map[string][]byte)}
}

func (s *MemoryService) NewStore(namespace, id string) Store {
	return &memoryStore{svc: s, key: storeKey(namespace, id)}
}

type memoryStore struct {
	svc *MemoryService
	key string
}

func (m *memoryStore) Save(data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", m.key)
	}
	m.svc.mu.Lock()
	defer m.svc.mu.Unlock()
	m.svc.data[m.key] = b
	return nil
}

func (m *memoryStore) Load(data interface{}) error {
	m.svc.mu.Lock()
	b, ok := m.svc.data[m.key]
	m.svc.mu.Unlock()
	if !ok {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}
