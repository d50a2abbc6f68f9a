package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Entry 一帧内准入的指令与生成，用于离线回放核对确定性
type Entry struct {
	Frame   uint64       `json:"frame"`
	Walks   []WalkEntry  `json:"walks,omitempty"`
	Looks   []LookEntry  `json:"looks,omitempty"`
	Casts   []CastEntry  `json:"casts,omitempty"`
	Spawns  []SpawnEntry `json:"spawns,omitempty"`
	Removed []uint32     `json:"removed,omitempty"`
}

type WalkEntry struct {
	Entity uint32     `json:"entity"`
	ID     uint64     `json:"id"`
	Origin uint64     `json:"origin"`
	Dir    [2]float64 `json:"dir"`
}

type LookEntry struct {
	Entity uint32     `json:"entity"`
	Dir    [2]float64 `json:"dir"`
}

type CastEntry struct {
	Entity  uint32     `json:"entity"`
	ID      uint64     `json:"id"`
	Missile uint32     `json:"missile"`
	Target  [2]float64 `json:"target"`
}

type SpawnEntry struct {
	Entity uint32     `json:"entity"`
	Kind   string     `json:"kind"`
	Pos    [2]float64 `json:"pos"`
}

// header 文件首行
type header struct {
	Match   string    `json:"match"`
	Started time.Time `json:"started"`
	Players []uint32  `json:"players"`
}

// Journal 一局对战的 zstd 压缩 JSONL 记录
type Journal struct {
	id   uuid.UUID
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Open 在 dir 下创建新的记录文件
func Open(dir string, players []uint32) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	id := uuid.New()
	path := filepath.Join(dir, fmt.Sprintf("match-%s.jsonl.zst", id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	j := &Journal{id: id, path: path, f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}
	if err := j.write(header{Match: id.String(), Started: time.Now().UTC(), Players: players}); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

// ID 对局 ID
func (j *Journal) ID() uuid.UUID {
	return j.id
}

// Path 文件路径
func (j *Journal) Path() string {
	return j.path
}

// Write 追加一帧
func (j *Journal) Write(e Entry) error {
	return j.write(e)
}

func (j *Journal) write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.w == nil {
		return os.ErrClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	return j.w.WriteByte('\n')
}

// Close 刷新并关闭
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.w == nil {
		return nil
	}
	var err error
	if e := j.w.Flush(); e != nil {
		err = e
	}
	if e := j.enc.Close(); e != nil && err == nil {
		err = e
	}
	if e := j.f.Close(); e != nil && err == nil {
		err = e
	}
	j.w, j.enc, j.f = nil, nil, nil
	return err
}

// ReadAll 读取记录文件，返回对局 ID 与所有帧
func ReadAll(path string) (string, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return "", nil, err
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	var (
		h       header
		entries []Entry
		first   = true
	)
	for scanner.Scan() {
		if first {
			if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
				return "", nil, fmt.Errorf("journal header: %w", err)
			}
			first = false
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return h.Match, entries, fmt.Errorf("journal entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	return h.Match, entries, scanner.Err()
}
