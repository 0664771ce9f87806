package hdmx

import (
	"bytes"
	"fmt"
)

// ParseFrame 校验长度、帧头、校验和后解码一帧
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) != FrameLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(raw), FrameLen)
	}
	if raw[0] != header[0] || raw[1] != header[1] {
		return nil, fmt.Errorf("%w: got %02X %02X", ErrBadHeader, raw[0], raw[1])
	}
	if err := VerifyChecksum(raw); err != nil {
		return nil, err
	}

	f := &Frame{
		Raw:      append([]byte(nil), raw...),
		Checksum: raw[checksumPos],
	}
	copy(f.Code[:], raw[HeaderLen:dataOffset])
	copy(f.Data[:], raw[dataOffset:checksumPos])
	return f, nil
}

// Validate 校验应答帧与已发送命令是否匹配
//   - 设置类命令：应答必须逐字节回显请求帧
//   - 查询类命令：命令码一致，且 d0 回显查询参数，结果位于 d2
func Validate(raw []byte, cmd Command) (*Frame, error) {
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, unexpected(cmd, raw, "%v", err)
	}
	if f.Code != cmd.Code() {
		return nil, unexpected(cmd, raw, "code %s, want %s", f.Code, cmd.Code())
	}

	d0, d2 := cmd.args()
	if cmd.IsQuery() {
		if f.Arg() != d0 {
			return nil, unexpected(cmd, raw, "argument echo %d, want %d", f.Arg(), d0)
		}
		return f, nil
	}
	if !bytes.Equal(raw, BuildFrame(cmd.Code(), d0, d2)) {
		return nil, unexpected(cmd, raw, "acknowledgement does not echo request")
	}
	return f, nil
}

// Status 输出口路由状态
type Status struct {
	Output Port `json:"output"`
	Input  Port `json:"input"`
}

// DecodeStatus 解析 QueryStatus 应答
func DecodeStatus(f *Frame, maxPorts int) (*Status, error) {
	if f == nil {
		return nil, &MalformedStatusError{Reason: "empty frame"}
	}
	if f.Code != CodeQueryPort {
		return nil, &MalformedStatusError{Raw: f.Raw, Reason: fmt.Sprintf("code %s is not a port query", f.Code)}
	}
	out := Port(f.Arg())
	if !out.Valid(maxPorts) {
		return nil, &MalformedStatusError{Raw: f.Raw, Reason: fmt.Sprintf("output %d outside 1-%d", out, maxPorts)}
	}
	in := Port(f.Value())
	if !in.Valid(maxPorts) {
		return nil, &MalformedStatusError{Raw: f.Raw, Reason: fmt.Sprintf("routed input %d outside 1-%d", in, maxPorts)}
	}
	return &Status{Output: out, Input: in}, nil
}

// DecodeBeep 蜂鸣器查询：值为 0 表示开启
func DecodeBeep(f *Frame) bool { return f.Value() == 0 }

// DecodeHPD 热插拔查询：值为 0 表示 HPD 高电平（显示器在位）
func DecodeHPD(f *Frame) bool { return f.Value() == 0 }

// DecodeCable 线缆查询：非 0 表示已连接
func DecodeCable(f *Frame) bool { return f.Value() != 0 }
