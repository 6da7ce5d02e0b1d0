package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

var snapshotMagic = [4]byte{'D', 'W', 'M', 'K'}

const snapshotVersion = 1

type snapshotHeader struct {
	Magic    [4]byte
	Version  uint8
	Width    uint32
	Height   uint32
	Duration int64
}

// MaskStore persists generated masks as zstd-compressed snapshots so a
// restarted worker can reuse them.
type MaskStore struct {
	backend Backend
}

func NewMaskStore(backend Backend) *MaskStore {
	return &MaskStore{backend: backend}
}

// MaskKey names the snapshot for a mask generated with the given
// parameters.
func MaskKey(name string, size int, sigmaI, sigmaS float64) string {
	return fmt.Sprintf("masks/%s-%d-%g-%g.zst", name, size, sigmaI, sigmaS)
}

// Save writes mask and the time it took to generate.
func (s *MaskStore) Save(ctx context.Context, key string, mask *pixbuf.Gray, took time.Duration) error {
	var raw bytes.Buffer
	header := snapshotHeader{
		Magic:    snapshotMagic,
		Version:  snapshotVersion,
		Width:    uint32(mask.Width),
		Height:   uint32(mask.Height),
		Duration: int64(took),
	}
	if err := binary.Write(&raw, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(&raw, binary.LittleEndian, mask.Data); err != nil {
		return err
	}

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err := enc.Write(raw.Bytes()); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	return s.backend.Put(ctx, key, &compressed)
}

// Load reads a snapshot. A missing snapshot returns ok == false and no
// error.
func (s *MaskStore) Load(ctx context.Context, key string) (mask *pixbuf.Gray, took time.Duration, ok bool, err error) {
	rc, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	defer rc.Close()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return nil, 0, false, err
	}
	defer dec.Close()

	var header snapshotHeader
	if err := binary.Read(dec, binary.LittleEndian, &header); err != nil {
		return nil, 0, false, fmt.Errorf("failed to read mask snapshot header: %w", err)
	}
	if header.Magic != snapshotMagic || header.Version != snapshotVersion {
		return nil, 0, false, fmt.Errorf("mask snapshot %s has unknown format", key)
	}
	if header.Width == 0 || header.Height == 0 || header.Width > 1<<14 || header.Height > 1<<14 {
		return nil, 0, false, fmt.Errorf("mask snapshot %s has invalid size %dx%d", key, header.Width, header.Height)
	}

	mask = pixbuf.NewGray(int(header.Width), int(header.Height))
	if err := binary.Read(dec, binary.LittleEndian, mask.Data); err != nil {
		return nil, 0, false, fmt.Errorf("failed to read mask snapshot data: %w", err)
	}
	return mask, time.Duration(header.Duration), true, nil
}
