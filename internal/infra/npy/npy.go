// Package npy 编码/解码 NumPy .npy（format 1.0）数组文件。
//
// 只支持 C 顺序、小端的 float32/float64/int64，足够覆盖本项目的输出。
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DType 是 numpy 的 descr 字符串。
type DType string

const (
	Float32 DType = "<f4"
	Float64 DType = "<f8"
	Int64   DType = "<i8"
)

var magic = []byte("\x93NUMPY")

// 数据区起始偏移对齐到 64 字节（与 numpy >= 1.x 的写法一致）。
const headerAlign = 64

func (d DType) size() (int, error) {
	switch d {
	case Float32:
		return 4, nil
	case Float64, Int64:
		return 8, nil
	default:
		return 0, fmt.Errorf("npy: 不支持的 dtype %q", string(d))
	}
}

// Array 是一个内存中的数组：Data 按 C 顺序展开，元素统一用 float64 承载。
type Array struct {
	DType DType
	Shape []int
	Data  []float64
}

// Len 返回 shape 各维乘积。
func (a Array) Len() int { return numel(a.Shape) }

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Header 生成 magic + version + header dict（含填充）。
func Header(dtype DType, shape []int) ([]byte, error) {
	if _, err := dtype.size(); err != nil {
		return nil, err
	}
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("npy: shape 含负数：%v", shape)
		}
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", dtype, shapeTuple(shape))
	// 10 = magic(6) + version(2) + header_len(2)；末尾必须是 '\n'。
	total := 10 + len(dict) + 1
	if pad := total % headerAlign; pad != 0 {
		dict += strings.Repeat(" ", headerAlign-pad)
	}
	dict += "\n"
	if len(dict) > math.MaxUint16 {
		return nil, fmt.Errorf("npy: header 过长（%d 字节）", len(dict))
	}

	var b bytes.Buffer
	b.Write(magic)
	b.Write([]byte{1, 0})
	_ = binary.Write(&b, binary.LittleEndian, uint16(len(dict)))
	b.WriteString(dict)
	return b.Bytes(), nil
}

func shapeTuple(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return "(" + strconv.Itoa(shape[0]) + ",)"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Encode 把 a 写成 .npy 到 w。
func Encode(w io.Writer, a Array) error {
	if a.Len() != len(a.Data) {
		return fmt.Errorf("npy: shape %v 需要 %d 个元素，实际 %d", a.Shape, a.Len(), len(a.Data))
	}
	h, err := Header(a.DType, a.Shape)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h); err != nil {
		return err
	}

	var buf [8]byte
	for _, v := range a.Data {
		switch a.DType {
		case Float32:
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(float32(v)))
			_, err = bw.Write(buf[:4])
		case Float64:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, err = bw.Write(buf[:])
		case Int64:
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
			_, err = bw.Write(buf[:])
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Marshal 是 Encode 的 []byte 版本。
func Marshal(a Array) ([]byte, error) {
	var b bytes.Buffer
	if err := Encode(&b, a); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

var (
	descrRE = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	orderRE = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRE = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// ErrNotNPY 表示输入不是 .npy 文件。
var ErrNotNPY = errors.New("npy: magic 不匹配")

// Decode 读取 Encode 产出的 .npy（format 1.0/2.0，C 顺序）。
//
// 转换流程本身只写不读；Decode 供各包测试回读输出、校验 shape 与数据。
func Decode(r io.Reader) (Array, error) {
	br := bufio.NewReader(r)

	pre := make([]byte, 8)
	if _, err := io.ReadFull(br, pre); err != nil {
		return Array{}, err
	}
	if !bytes.Equal(pre[:6], magic) {
		return Array{}, ErrNotNPY
	}

	var hlen int
	switch pre[6] {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Array{}, err
		}
		hlen = int(n)
	case 2:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Array{}, err
		}
		hlen = int(n)
	default:
		return Array{}, fmt.Errorf("npy: 不支持的版本 %d.%d", pre[6], pre[7])
	}

	hb := make([]byte, hlen)
	if _, err := io.ReadFull(br, hb); err != nil {
		return Array{}, err
	}
	header := string(hb)

	m := descrRE.FindStringSubmatch(header)
	if m == nil {
		return Array{}, fmt.Errorf("npy: header 缺少 descr：%q", header)
	}
	dtype := DType(m[1])
	size, err := dtype.size()
	if err != nil {
		return Array{}, err
	}
	if o := orderRE.FindStringSubmatch(header); o != nil && o[1] == "True" {
		return Array{}, errors.New("npy: 不支持 fortran_order=True")
	}
	s := shapeRE.FindStringSubmatch(header)
	if s == nil {
		return Array{}, fmt.Errorf("npy: header 缺少 shape：%q", header)
	}
	shape := []int{}
	for _, p := range strings.Split(s[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil {
			return Array{}, fmt.Errorf("npy: shape 无效：%q", s[1])
		}
		shape = append(shape, d)
	}

	n := numel(shape)
	data := make([]float64, n)
	buf := make([]byte, size)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return Array{}, err
		}
		switch dtype {
		case Float32:
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
		case Float64:
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
		case Int64:
			data[i] = float64(int64(binary.LittleEndian.Uint64(buf)))
		}
	}
	return Array{DType: dtype, Shape: shape, Data: data}, nil
}
