package storage

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sekai02/pagewrite/internal/index"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

// BadgerDB holds the pages of every persisted device plus system metadata.
type BadgerDB struct {
	db *badger.DB
	mu sync.RWMutex
}

// OpenBadger opens the database at path. An empty path keeps everything in
// memory.
func OpenBadger(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerDB{db: db}, nil
}

func (s *BadgerDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Close()
}

func (s *BadgerDB) SaveMetadata(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(key), data)
	})
}

// LoadMetadata returns badger.ErrKeyNotFound when nothing was saved yet.
func (s *BadgerDB) LoadMetadata(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			result = make([]byte, len(val))
			copy(result, val)
			return nil
		})
	})

	return result, err
}

// Backend returns the persisted NVM device stored under device. Pages never
// written read back erased.
func (s *BadgerDB) Backend(device uint64, geo sys.Geometry) (*BadgerBackend, error) {
	if err := geo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}

	b := &BadgerBackend{
		store:  s,
		device: device,
		pages:  make(map[int][]byte),
		dirty:  index.NewPageSet(),
	}
	b.controller = newController(geo, b)
	return b, nil
}

func (s *BadgerDB) readPage(device uint64, page int, dst []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(device, page))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) != len(dst) {
				return fmt.Errorf("page %d of device %d has %d bytes, want %d", page, device, len(val), len(dst))
			}
			copy(dst, val)
			found = true
			return nil
		})
	})

	return found, err
}

func (s *BadgerDB) writePages(device uint64, pages map[int][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		for page, data := range pages {
			if err := txn.Set(pageKey(device, page), data); err != nil {
				return fmt.Errorf("set page %d: %w", page, err)
			}
		}
		return nil
	})
}

// BadgerBackend keeps the pages of one device in badger. Pages modified
// during an operation are written out when the controller goes idle.
type BadgerBackend struct {
	*controller
	store  *BadgerDB
	device uint64
	pages  map[int][]byte
	dirty  index.PageSet
}

func (b *BadgerBackend) loadPage(page int) []byte {
	if data, ok := b.pages[page]; ok {
		return data
	}

	data := erasedPage(b.geo.PageSize)
	found, err := b.store.readPage(b.device, page, data)
	if err != nil {
		slog.Error("Failed to read page, treating it as erased", "device", b.device, "page", page, "error", err)
		data = erasedPage(b.geo.PageSize)
	} else if !found {
		slog.Debug("Page not stored yet", "device", b.device, "page", page)
	}

	b.pages[page] = data
	return data
}

func (b *BadgerBackend) readByte(addr nvm.Address) byte {
	data := b.loadPage(b.geo.PageIndex(uint32(addr)))
	return data[b.geo.PageOffset(uint32(addr))]
}

func (b *BadgerBackend) erase(page nvm.Address) {
	idx := b.geo.PageIndex(uint32(page))
	b.pages[idx] = erasedPage(b.geo.PageSize)
	b.dirty.Add(idx)
}

func (b *BadgerBackend) program(addr nvm.Address, lo, hi byte) {
	idx := b.geo.PageIndex(uint32(addr))
	off := b.geo.PageOffset(uint32(addr))
	data := b.loadPage(idx)
	data[off] &= lo
	data[off+1] &= hi
	b.dirty.Add(idx)
}

func (b *BadgerBackend) flush() error {
	if b.dirty.Size() == 0 {
		return nil
	}

	pages := make(map[int][]byte, b.dirty.Size())
	for _, idx := range b.dirty.Sorted() {
		pages[idx] = append([]byte(nil), b.pages[idx]...)
	}
	if err := b.store.writePages(b.device, pages); err != nil {
		return fmt.Errorf("flush device %d: %w", b.device, err)
	}

	for idx := range pages {
		b.dirty.Remove(idx)
	}
	return nil
}

func erasedPage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = sys.ErasedByte
	}
	return data
}

func pageKey(device uint64, page int) []byte {
	key := make([]byte, 17)
	key[0] = 'p'
	binary.BigEndian.PutUint64(key[1:], device)
	binary.BigEndian.PutUint64(key[9:], uint64(page))
	return key
}

func metaKey(name string) []byte {
	return []byte("meta:" + name)
}
