package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tidestore/tidestore/utils/io"
	"github.com/tidestore/tidestore/utils/log"
)

/*
	FileManager backs segments with fixed-size preallocated files under a
	root directory, one file per segment ID. Descriptors are cached in the
	manager and stay open until the manager itself is closed, so device
	writes that are still in flight when a segment handle is closed remain
	valid.
*/

const fallbackBlockSize = 4096

type FileManager struct {
	rootDir     string
	segmentSize int64
	blockSize   int64

	mu    sync.Mutex
	files map[ID]*os.File
}

type SegmentFileError string

func (msg SegmentFileError) Error() string {
	return fmt.Sprintf("%s: segment file operation failed", string(msg))
}

func NewFileManager(rootDir string, segmentSize, blockSize int64) (*FileManager, error) {
	if blockSize == 0 {
		blockSize = deviceBlockSize(rootDir)
	}
	if blockSize <= 0 || segmentSize < 2*blockSize || segmentSize%blockSize != 0 {
		return nil, fmt.Errorf("invalid segment geometry: segment=%d block=%d", segmentSize, blockSize)
	}
	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create segment root %s: %w", rootDir, err)
	}
	return &FileManager{
		rootDir:     rootDir,
		segmentSize: segmentSize,
		blockSize:   blockSize,
		files:       make(map[ID]*os.File),
	}, nil
}

func (m *FileManager) GetSegmentSize() int64 {
	return m.segmentSize
}

func (m *FileManager) GetBlockSize() int64 {
	return m.blockSize
}

func segmentFileName(id ID) string {
	return fmt.Sprintf("journal.%010d.seg", id)
}

func parseSegmentFileName(name string) (ID, bool) {
	if !strings.HasPrefix(name, "journal.") || !strings.HasSuffix(name, ".seg") {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "journal."), ".seg"), 10, 32)
	if err != nil {
		return 0, false
	}
	return ID(id), true
}

// file returns the cached descriptor for id, opening (and creating if
// requested) the backing file on first use.
func (m *FileManager) file(id ID, create bool) (*os.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fp, ok := m.files[id]; ok {
		return fp, nil
	}
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	filePath := filepath.Join(m.rootDir, segmentFileName(id))
	fp, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return nil, errors.New(io.GetCallerFileContext(0) + ": " + err.Error())
	}
	m.files[id] = fp
	return fp, nil
}

func (m *FileManager) Open(id ID) (Segment, error) {
	fp, err := m.file(id, true)
	if err != nil {
		return nil, fmt.Errorf("cannot open segment %d: %w", id, err)
	}
	if err := preallocate(fp, m.segmentSize); err != nil {
		log.Error("%v: cannot preallocate segment %d: %v", io.GetCallerFileContext(0), id, err)
		return nil, fmt.Errorf("cannot preallocate segment %d: %w", id, err)
	}
	return &fileSegment{mgr: m, id: id, fp: fp}, nil
}

func (m *FileManager) ReadAt(id ID, off int64, p []byte) (int, error) {
	fp, err := m.file(id, false)
	if err != nil {
		return 0, fmt.Errorf("cannot read segment %d: %w", id, err)
	}
	return fp.ReadAt(p, off)
}

// ListSegments returns the IDs of all segment files under the root, sorted.
func (m *FileManager) ListSegments() ([]ID, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("cannot list segment root %s: %w", m.rootDir, err)
	}
	var ids []ID
	for _, e := range entries {
		if id, ok := parseSegmentFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, fp := range m.files {
		if err := fp.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cannot close segment %d: %w", id, err)
		}
		delete(m.files, id)
	}
	return firstErr
}

type fileSegment struct {
	mgr *FileManager
	id  ID
	fp  *os.File

	mu     sync.Mutex
	closed bool
}

func (s *fileSegment) GetSegmentID() ID {
	return s.id
}

func (s *fileSegment) GetWriteCapacity() int64 {
	return s.mgr.segmentSize
}

func (s *fileSegment) Write(off int64, p []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return SegmentFileError(io.GetCallerFileContext(0) + ": write to closed segment")
	}
	if off%s.mgr.blockSize != 0 {
		return fmt.Errorf("segment %d write at unaligned offset %d", s.id, off)
	}
	if off+int64(len(p)) > s.mgr.segmentSize {
		return fmt.Errorf("segment %d write beyond capacity: off=%d len=%d", s.id, off, len(p))
	}
	if _, err := s.fp.WriteAt(p, off); err != nil {
		return fmt.Errorf("segment %d write at %d: %w", s.id, off, err)
	}
	// The journal's durability boundary is the completion of this write.
	if err := s.fp.Sync(); err != nil {
		return fmt.Errorf("segment %d sync: %w", s.id, err)
	}
	return nil
}

// Close finalizes the segment handle. The descriptor stays cached in the
// manager so concurrent writes issued before Close remain valid.
func (s *fileSegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.fp.Sync(); err != nil {
		return fmt.Errorf("segment %d close sync: %w", s.id, err)
	}
	return nil
}
