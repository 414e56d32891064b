// Package headerstore 提供区块头部的持久化存储
//
// 🗄️ **头部存储 (Header Store)**
//
// 本文件实现链评分器依赖的头部读写层，专注于：
// - Badger持久化：头部以CBOR编码存入Badger，键为 h: 前缀加32字节标识
// - 最佳指针：best: 键记录当前最佳链顶端，供重启后恢复
// - 缺失即错误：查询不到的头部返回ErrHeaderNotFound，绝不静默造零值
package headerstore

import (
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/qpchain/v1/internal/config/storage"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// ErrHeaderNotFound 查询的头部不存在
var ErrHeaderNotFound = errors.New("区块头部不存在")

var (
	headerKeyPrefix = []byte("h:")
	bestHeaderKey   = []byte("best:head")
)

// Store Badger支撑的头部存储
type Store struct {
	db     *badger.DB
	logger logiface.Logger

	mu   sync.RWMutex
	best types.Hash
}

// New 打开头部存储
//
// cfg.InMemory为真时使用Badger纯内存模式，进程退出即丢弃。
func New(cfg *storage.Config, logger logiface.Logger) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开头部存储失败: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.loadBest(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭底层数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// HeaderByHash 按区块标识查询头部
func (s *Store) HeaderByHash(hash types.Hash) (*types.BlockHeader, error) {
	var header types.BlockHeader

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headerKey(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrHeaderNotFound, hash.Hex())
			}
			return fmt.Errorf("读取头部失败: %w", err)
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &header)
		})
	})
	if err != nil {
		return nil, err
	}
	return &header, nil
}

// PutHeader 写入一个头部
func (s *Store) PutHeader(header *types.BlockHeader) error {
	raw, err := cbor.Marshal(header)
	if err != nil {
		return fmt.Errorf("编码头部失败: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(headerKey(header.Hash), raw)
	})
	if err != nil {
		return fmt.Errorf("写入头部失败: %w", err)
	}
	return nil
}

// SetBest 更新最佳链顶端指针
func (s *Store) SetBest(hash types.Hash) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bestHeaderKey, hash[:])
	})
	if err != nil {
		return fmt.Errorf("更新最佳指针失败: %w", err)
	}

	s.mu.Lock()
	s.best = hash
	s.mu.Unlock()
	return nil
}

// Best 返回当前最佳链顶端标识（从未设置过时为全零）
func (s *Store) Best() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.best
}

// loadBest 重启后恢复最佳指针
func (s *Store) loadBest() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bestHeaderKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("恢复最佳指针失败: %w", err)
		}
		return item.Value(func(val []byte) error {
			if len(val) != types.HashSize {
				return fmt.Errorf("最佳指针长度非法: %d", len(val))
			}
			s.mu.Lock()
			copy(s.best[:], val)
			s.mu.Unlock()
			return nil
		})
	})
}

// headerKey 构造头部存储键
func headerKey(hash types.Hash) []byte {
	key := make([]byte, 0, len(headerKeyPrefix)+types.HashSize)
	key = append(key, headerKeyPrefix...)
	key = append(key, hash[:]...)
	return key
}
