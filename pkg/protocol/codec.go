package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// CompressThreshold 超过该大小的负载使用 zstd 压缩
	CompressThreshold = 1024
	// MaxPayloadSize 解压后负载的上限
	MaxPayloadSize = 1 << 20

	flagZstd = 1
)

var (
	ErrUnknownMessage = errors.New("未知消息类型")
	ErrEmptyEnvelope  = errors.New("消息缺少类型")
	ErrNonFinite      = errors.New("向量包含 NaN 或无穷")
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Envelope 解码后的消息及其会话 ID
type Envelope struct {
	SessionID uint32
	Message   Message
}

// Marshal 编码消息：会话 ID、类型、负载（可能压缩）
func Marshal(sessionID uint32, m Message) ([]byte, error) {
	payload := m.appendPayload(nil)
	var flags uint64
	if len(payload) > CompressThreshold {
		enc, _, err := codecs()
		if err != nil {
			return nil, fmt.Errorf("初始化压缩失败: %w", err)
		}
		payload = enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		flags |= flagZstd
	}

	b := make([]byte, 0, len(payload)+16)
	b = appendUint(b, 1, uint64(sessionID))
	b = appendUint(b, 2, uint64(m.Type()))
	b = appendUint(b, 3, flags)
	b = appendBytes(b, 4, payload)
	return b, nil
}

// Unmarshal 解码消息
func Unmarshal(data []byte) (Envelope, error) {
	var (
		env     Envelope
		typ     MessageType
		flags   uint64
		payload []byte
	)
	err := walk(data, func(f *field) error {
		switch f.num {
		case 1:
			env.SessionID = f.uint32()
		case 2:
			typ = MessageType(f.uint64())
		case 3:
			flags = f.uint64()
		case 4:
			payload = f.bytes()
		}
		return nil
	})
	if err != nil {
		return env, fmt.Errorf("解析信封失败: %w", err)
	}
	if typ == MsgUnknown {
		return env, ErrEmptyEnvelope
	}
	m, ok := newMessage(typ)
	if !ok {
		return env, fmt.Errorf("%w: %d", ErrUnknownMessage, typ)
	}

	if flags&flagZstd != 0 {
		_, dec, err := codecs()
		if err != nil {
			return env, fmt.Errorf("初始化解压失败: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return env, fmt.Errorf("解压 %s 失败: %w", typ, err)
		}
	}
	if err := m.decodePayload(payload); err != nil {
		return env, fmt.Errorf("解析 %s 失败: %w", typ, err)
	}
	env.Message = m
	return env, nil
}
