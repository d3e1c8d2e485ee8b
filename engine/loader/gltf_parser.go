package loader

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.0")
	errInvalidGLBMagic    = errors.New("invalid GLB magic number")
	errInvalidGLBVersion  = errors.New("invalid GLB version: must be 2")
	errGLBTruncated       = errors.New("GLB file truncated")
	errMissingJSONChunk   = errors.New("GLB file missing JSON chunk")
	errInvalidDataURI     = errors.New("invalid data URI")
	errBufferSizeMismatch = errors.New("buffer size mismatch")
	errOutOfBounds        = errors.New("accessor reads past its buffer")
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	baseDir        string
	document       *gltfDocument
	glbBinaryChunk []byte
}

// gltfParser defines the interface for loading and parsing glTF/GLB files.
// It handles file I/O, JSON deserialization, buffer loading, and typed accessor reads.
type gltfParser interface {
	// Parse loads and parses a glTF/GLB file from the given path.
	// Automatically detects .gltf (JSON) vs .glb (binary) format.
	//
	// Parameters:
	//   - path: path to the glTF or GLB file
	//
	// Returns:
	//   - error: error if parsing fails
	Parse(path string) error

	// ParseReader parses a glTF document from a reader. External URIs resolve against baseDir.
	//
	// Parameters:
	//   - r: reader containing glTF JSON or GLB data
	//   - isGLB: true if the data is in GLB format
	//   - baseDir: directory used for relative URIs, empty for the working directory
	//
	// Returns:
	//   - error: error if parsing fails
	ParseReader(r io.Reader, isGLB bool, baseDir string) error

	// Document returns the parsed glTF document, nil before a successful parse.
	Document() *gltfDocument

	// BaseDir returns the directory relative URIs are resolved against.
	BaseDir() string

	// ReadAccessorData reads the tightly packed elements of an accessor.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - []byte: count * element size bytes
	//   - error: error if the accessor is missing, sparse or out of bounds
	ReadAccessorData(accessorIndex int) ([]byte, error)

	// ReadFloatAccessor reads an accessor as floats, converting normalized integer components.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//   - accessorType: the required element type (VEC2, VEC3, ...)
	//
	// Returns:
	//   - []float32: count * components values
	//   - error: error if the type does not match or reading fails
	ReadFloatAccessor(accessorIndex int, accessorType string) ([]float32, error)

	// ReadIndicesAccessor reads an accessor as index data.
	// Handles UNSIGNED_BYTE, UNSIGNED_SHORT, and UNSIGNED_INT component types.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - []uint32: the indices
	//   - error: error if reading fails
	ReadIndicesAccessor(accessorIndex int) ([]uint32, error)

	// ReadBufferView returns the bytes of a buffer view, used for embedded images.
	ReadBufferView(bufferViewIndex int) ([]byte, error)

	// ReadURI resolves a data URI or a file relative to BaseDir.
	//
	// Parameters:
	//   - uri: the URI
	//
	// Returns:
	//   - []byte: the content
	//   - string: the MIME type declared by a data URI, empty for files
	//   - error: error if decoding or reading fails
	ReadURI(uri string) ([]byte, string, error)
}

var _ gltfParser = &gltfParserImpl{}

func newGLTFParser() gltfParser {
	return &gltfParserImpl{}
}

func (p *gltfParserImpl) Document() *gltfDocument {
	return p.document
}

func (p *gltfParserImpl) BaseDir() string {
	return p.baseDir
}

func (p *gltfParserImpl) Parse(path string) error {
	p.baseDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".glb" || (len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic) {
		return p.parseGLB(data)
	}
	return p.parseGLTF(data)
}

func (p *gltfParserImpl) ParseReader(r io.Reader, isGLB bool, baseDir string) error {
	p.baseDir = baseDir
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	if isGLB {
		return p.parseGLB(data)
	}
	return p.parseGLTF(data)
}

func (p *gltfParserImpl) parseGLTF(data []byte) error {
	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	return p.finishDocument(&doc)
}

// parseGLB walks the chunks of a GLB container. The first JSON and BIN chunks are kept, both
// aliasing data.
func (p *gltfParserImpl) parseGLB(data []byte) error {
	le := binary.LittleEndian
	if len(data) < gltfGLBHeaderSize {
		return fmt.Errorf("%d bytes: %w", len(data), errGLBTruncated)
	}
	if le.Uint32(data[0:4]) != gltfGLBMagic {
		return errInvalidGLBMagic
	}
	if le.Uint32(data[4:8]) != gltfGLBVersion {
		return errInvalidGLBVersion
	}
	declared := int(le.Uint32(data[8:12]))
	if declared < gltfGLBHeaderSize || declared > len(data) {
		return fmt.Errorf("header declares %d bytes, file has %d: %w", declared, len(data), errGLBTruncated)
	}
	data = data[:declared]

	var jsonData []byte
	p.glbBinaryChunk = nil
	for rest := data[gltfGLBHeaderSize:]; len(rest) > 0; {
		if len(rest) < gltfGLBChunkHeaderSize {
			return fmt.Errorf("chunk header: %w", errGLBTruncated)
		}
		length, kind := int(le.Uint32(rest[0:4])), le.Uint32(rest[4:8])
		rest = rest[gltfGLBChunkHeaderSize:]
		if length > len(rest) {
			return fmt.Errorf("chunk of %d bytes: %w", length, errGLBTruncated)
		}
		chunk := rest[:length:length]
		rest = rest[length:]

		switch {
		case kind == gltfGLBChunkJSON && jsonData == nil:
			jsonData = chunk
		case kind == gltfGLBChunkBIN && p.glbBinaryChunk == nil:
			p.glbBinaryChunk = chunk
		}
	}
	if jsonData == nil {
		return errMissingJSONChunk
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	return p.finishDocument(&doc)
}

func (p *gltfParserImpl) finishDocument(doc *gltfDocument) error {
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return errInvalidGLTFVersion
	}
	if err := p.loadBuffers(doc); err != nil {
		return fmt.Errorf("failed to load buffers: %w", err)
	}
	p.document = doc
	return nil
}

// loadBuffers fills every buffer from its URI, or buffer 0 from the GLB binary chunk.
func (p *gltfParserImpl) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]

		if buf.URI == "" {
			if i != 0 || p.glbBinaryChunk == nil {
				return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
			}
			buf.Data = p.glbBinaryChunk
		} else {
			data, _, err := p.ReadURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		}

		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}
	return nil
}

func (p *gltfParserImpl) ReadURI(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}
	data, err := os.ReadFile(filepath.Join(p.baseDir, filepath.FromSlash(uri)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %q: %w", uri, err)
	}
	return data, "", nil
}

// decodeDataURI decodes data:[<mediatype>];base64,<data>.
func decodeDataURI(uri string) ([]byte, string, error) {
	commaIdx := strings.Index(uri, ",")
	if !strings.HasPrefix(uri, "data:") || commaIdx < 0 {
		return nil, "", errInvalidDataURI
	}

	header := uri[len("data:"):commaIdx]
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("unsupported data URI encoding %q: %w", header, errInvalidDataURI)
	}

	data, err := base64.StdEncoding.DecodeString(uri[commaIdx+1:])
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, mimeType, nil
}

func (p *gltfParserImpl) ReadBufferView(bufferViewIndex int) ([]byte, error) {
	doc := p.document
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	if bufferViewIndex < 0 || bufferViewIndex >= len(doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", bufferViewIndex)
	}
	bv := &doc.BufferViews[bufferViewIndex]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	buf := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(buf) {
		return nil, fmt.Errorf("bufferView %d: offset=%d length=%d bufSize=%d: %w",
			bufferViewIndex, bv.ByteOffset, bv.ByteLength, len(buf), errOutOfBounds)
	}
	return buf[bv.ByteOffset:end], nil
}

func (p *gltfParserImpl) accessor(accessorIndex int) (*gltfAccessor, error) {
	if p.document == nil {
		return nil, errors.New("no document loaded")
	}
	if accessorIndex < 0 || accessorIndex >= len(p.document.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", accessorIndex)
	}
	return &p.document.Accessors[accessorIndex], nil
}

func (p *gltfParserImpl) ReadAccessorData(accessorIndex int) ([]byte, error) {
	acc, err := p.accessor(accessorIndex)
	if err != nil {
		return nil, err
	}

	elementSize := gltfComponentSizes[acc.ComponentType] * gltfAccessorComponents[acc.Type]
	if elementSize == 0 || acc.Count < 0 {
		return nil, fmt.Errorf("accessor %d: bad type %s/%d", accessorIndex, acc.Type, acc.ComponentType)
	}

	// Without a buffer view the accessor starts out as zeros.
	result := make([]byte, acc.Count*elementSize)
	if acc.BufferView != nil {
		if err := p.readDense(acc, elementSize, result); err != nil {
			return nil, fmt.Errorf("accessor %d: %w", accessorIndex, err)
		}
	}
	if acc.Sparse != nil {
		if err := p.applySparse(acc.Sparse, elementSize, result); err != nil {
			return nil, fmt.Errorf("accessor %d sparse: %w", accessorIndex, err)
		}
	}
	return result, nil
}

// readDense copies the strided elements of an accessor's buffer view into dst.
func (p *gltfParserImpl) readDense(acc *gltfAccessor, elementSize int, dst []byte) error {
	view, err := p.ReadBufferView(*acc.BufferView)
	if err != nil {
		return err
	}
	stride := elementSize
	if s := p.document.BufferViews[*acc.BufferView].ByteStride; s != nil && *s > 0 {
		stride = *s
	}
	if acc.Count == 0 {
		return nil
	}
	if acc.ByteOffset < 0 || acc.ByteOffset+(acc.Count-1)*stride+elementSize > len(view) {
		return errOutOfBounds
	}

	if stride == elementSize {
		copy(dst, view[acc.ByteOffset:])
		return nil
	}
	for i := range acc.Count {
		copy(dst[i*elementSize:(i+1)*elementSize], view[acc.ByteOffset+i*stride:])
	}
	return nil
}

// applySparse overwrites the elements of dst listed by a sparse block.
func (p *gltfParserImpl) applySparse(s *gltfSparse, elementSize int, dst []byte) error {
	ct := s.Indices.ComponentType
	if ct != gltfComponentTypeUnsignedByte && ct != gltfComponentTypeUnsignedShort && ct != gltfComponentTypeUnsignedInt {
		return fmt.Errorf("unsupported index component type: %d", ct)
	}
	indexSize := gltfComponentSizes[ct]

	indices, err := p.ReadBufferView(s.Indices.BufferView)
	if err != nil {
		return err
	}
	values, err := p.ReadBufferView(s.Values.BufferView)
	if err != nil {
		return err
	}
	if s.Count < 0 || s.Indices.ByteOffset < 0 || s.Values.ByteOffset < 0 ||
		s.Indices.ByteOffset+s.Count*indexSize > len(indices) ||
		s.Values.ByteOffset+s.Count*elementSize > len(values) {
		return errOutOfBounds
	}

	elements := len(dst) / elementSize
	for i := range s.Count {
		target := int(decodeIndex(indices[s.Indices.ByteOffset+i*indexSize:], ct))
		if target >= elements {
			return fmt.Errorf("index %d out of range for %d elements", target, elements)
		}
		src := s.Values.ByteOffset + i*elementSize
		copy(dst[target*elementSize:(target+1)*elementSize], values[src:])
	}
	return nil
}

func (p *gltfParserImpl) ReadFloatAccessor(accessorIndex int, accessorType string) ([]float32, error) {
	acc, err := p.accessor(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != accessorType {
		return nil, fmt.Errorf("accessor %d is %s, want %s", accessorIndex, acc.Type, accessorType)
	}
	ct := acc.ComponentType
	if ct != gltfComponentTypeFloat && (!acc.Normalized || ct == gltfComponentTypeUnsignedInt) {
		return nil, fmt.Errorf("accessor %d: component type %d is neither float nor normalized", accessorIndex, ct)
	}

	data, err := p.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}

	size := gltfComponentSizes[ct]
	result := make([]float32, len(data)/size)
	for i := range result {
		result[i] = decodeComponent(data[i*size:], ct)
	}
	return result, nil
}

func (p *gltfParserImpl) ReadIndicesAccessor(accessorIndex int) ([]uint32, error) {
	acc, err := p.accessor(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeScalar {
		return nil, fmt.Errorf("index accessor %d is %s, want SCALAR", accessorIndex, acc.Type)
	}
	ct := acc.ComponentType
	if ct != gltfComponentTypeUnsignedByte && ct != gltfComponentTypeUnsignedShort && ct != gltfComponentTypeUnsignedInt {
		return nil, fmt.Errorf("unsupported index component type: %d", ct)
	}

	data, err := p.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}

	size := gltfComponentSizes[ct]
	result := make([]uint32, acc.Count)
	for i := range result {
		result[i] = decodeIndex(data[i*size:], ct)
	}
	return result, nil
}

// decodeIndex reads one unsigned integer component.
func decodeIndex(b []byte, componentType int) uint32 {
	switch componentType {
	case gltfComponentTypeUnsignedByte:
		return uint32(b[0])
	case gltfComponentTypeUnsignedShort:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b)
	}
}

// decodeComponent reads one float or normalized integer component as a float.
func decodeComponent(b []byte, componentType int) float32 {
	le := binary.LittleEndian
	switch componentType {
	case gltfComponentTypeFloat:
		return math.Float32frombits(le.Uint32(b))
	case gltfComponentTypeUnsignedByte:
		return float32(b[0]) / 255
	case gltfComponentTypeUnsignedShort:
		return float32(le.Uint16(b)) / 65535
	case gltfComponentTypeByte:
		return max(float32(int8(b[0]))/127, -1)
	case gltfComponentTypeShort:
		return max(float32(int16(le.Uint16(b)))/32767, -1)
	default:
		return 0
	}
}
