package loaders

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

const (
	// SegmentRecordFloats is the number of float32 values per segment record
	SegmentRecordFloats = 12
	// SegmentRecordSize is the size of one segment record in bytes
	SegmentRecordSize = SegmentRecordFloats * 4
)

// segmentRecord is [sp.x, sp.y, ep.x, ep.y, light, r, g, b, roughness, seed, pad, pad]
type segmentRecord [SegmentRecordFloats]float32

func toRecord(s geometry.LineSegment) segmentRecord {
	return segmentRecord{
		float32(s.Start.X), float32(s.Start.Y),
		float32(s.End.X), float32(s.End.Y),
		float32(s.Light),
		float32(s.Color.X), float32(s.Color.Y), float32(s.Color.Z),
		float32(s.Roughness),
		float32(s.Seed),
	}
}

func fromRecord(r segmentRecord) geometry.LineSegment {
	seg := geometry.NewLightSegment(
		core.NewVec2(float64(r[0]), float64(r[1])),
		core.NewVec2(float64(r[2]), float64(r[3])),
		core.NewVec3(float64(r[5]), float64(r[6]), float64(r[7])),
		float64(r[4]))
	return seg.WithRoughness(float64(r[8])).WithSeed(float64(r[9]))
}

// DecodeSegments parses a little-endian segment buffer
func DecodeSegments(data []byte) ([]geometry.LineSegment, error) {
	if len(data)%SegmentRecordSize != 0 {
		return nil, fmt.Errorf("segment buffer length %d is not a multiple of %d", len(data), SegmentRecordSize)
	}
	return ReadSegments(bytes.NewReader(data), len(data)/SegmentRecordSize)
}

// ReadSegments reads count records from r
func ReadSegments(r io.Reader, count int) ([]geometry.LineSegment, error) {
	reader := bufio.NewReader(r)
	segments := make([]geometry.LineSegment, 0, count)
	for i := 0; i < count; i++ {
		var record segmentRecord
		if err := binary.Read(reader, binary.LittleEndian, &record); err != nil {
			return nil, fmt.Errorf("failed to read segment %d: %w", i, err)
		}
		seg := fromRecord(record)
		if err := validateSegment(seg); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// EncodeSegments packs segments into a little-endian buffer
func EncodeSegments(segments []geometry.LineSegment) []byte {
	var buf bytes.Buffer
	buf.Grow(len(segments) * SegmentRecordSize)
	// Writes to a bytes.Buffer cannot fail
	_ = WriteSegments(&buf, segments)
	return buf.Bytes()
}

// WriteSegments writes one record per segment to w
func WriteSegments(w io.Writer, segments []geometry.LineSegment) error {
	writer := bufio.NewWriter(w)
	for i, seg := range segments {
		record := toRecord(seg)
		if err := binary.Write(writer, binary.LittleEndian, &record); err != nil {
			return fmt.Errorf("failed to write segment %d: %w", i, err)
		}
	}
	return writer.Flush()
}

// LoadSegmentFile reads a binary segment buffer from disk
func LoadSegmentFile(filename string) ([]geometry.LineSegment, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment file: %w", err)
	}
	return DecodeSegments(data)
}

// validateSegment rejects values the renderer cannot interpret
func validateSegment(s geometry.LineSegment) error {
	for _, v := range []float64{s.Start.X, s.Start.Y, s.End.X, s.End.Y, s.Light, s.Color.X, s.Color.Y, s.Color.Z, s.Roughness, s.Seed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value %v", v)
		}
	}
	switch {
	case s.Light < 0:
		return fmt.Errorf("negative light %v", s.Light)
	case s.Color.X < 0 || s.Color.Y < 0 || s.Color.Z < 0:
		return fmt.Errorf("negative colour %v", s.Color)
	case s.Roughness < 0:
		return fmt.Errorf("negative roughness %v", s.Roughness)
	}
	return nil
}

// EncodeWatcher packs a watcher as 4 little-endian float32 values
func EncodeWatcher(w geometry.Watcher) []byte {
	out := make([]byte, 16)
	for i, v := range []float64{w.Position.X, w.Position.Y, w.Offset.X, w.Offset.Y} {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

// DecodeWatcher unpacks a 16-byte watcher block
func DecodeWatcher(data []byte) (geometry.Watcher, error) {
	if len(data) != 16 {
		return geometry.Watcher{}, fmt.Errorf("watcher block must be 16 bytes, got %d", len(data))
	}
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return geometry.Watcher{
		Position: core.NewVec2(f(0), f(1)),
		Offset:   core.NewVec2(f(2), f(3)),
	}, nil
}

// EncodeImageSize packs an image size as 2 little-endian uint32 values
func EncodeImageSize(s geometry.ImageSize) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:], uint32(s.Width))
	binary.LittleEndian.PutUint32(out[4:], uint32(s.Height))
	return out
}

// DecodeImageSize unpacks an 8-byte image size block
func DecodeImageSize(data []byte) (geometry.ImageSize, error) {
	if len(data) != 8 {
		return geometry.ImageSize{}, fmt.Errorf("image size block must be 8 bytes, got %d", len(data))
	}
	return geometry.ImageSize{
		Width:  int(binary.LittleEndian.Uint32(data[0:])),
		Height: int(binary.LittleEndian.Uint32(data[4:])),
	}, nil
}
